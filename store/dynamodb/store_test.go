//go:build !integration

package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/dgduncan/go-offline-sync/caches"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name      string
		client    *dynamodb.Client
		config    *Config
		expectErr bool
	}{
		{
			name:   "nil client returns error",
			client: nil,
			config: &Config{
				ActionTable:  "actions",
				RecordTable:  "records",
				SettingTable: "settings",
			},
			expectErr: true,
		},
		{
			name:      "nil config returns error",
			client:    &dynamodb.Client{},
			config:    nil,
			expectErr: true,
		},
		{
			name:   "missing table name returns error",
			client: &dynamodb.Client{},
			config: &Config{
				ActionTable: "actions",
			},
			expectErr: true,
		},
		{
			name:   "complete config",
			client: &dynamodb.Client{},
			config: &Config{
				ActionTable:  "actions",
				RecordTable:  "records",
				SettingTable: "settings",
			},
			expectErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(context.Background(), tt.client, tt.config)

			if tt.expectErr {
				var ve caches.ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("expected a validation error, got %v", err)
				}
				if s != nil {
					t.Error("expected nil store")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if s.actionTable != tt.config.ActionTable {
				t.Errorf("expected action table %s, got %s", tt.config.ActionTable, s.actionTable)
			}
		})
	}
}

// Package dynamodb implements the durable store on Amazon DynamoDB, for
// fleet deployments that want queued actions to survive the machine
// itself.
package dynamodb

import (
	"bytes"
	"context"
	"encoding/gob"
	"net/http"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dgduncan/go-offline-sync/caches"
	"github.com/dgduncan/go-offline-sync/store"
)

// Config defines the configuration options for the DynamoDB store.
type Config struct {
	ActionTable  string
	RecordTable  string
	SettingTable string
}

// Store implements store.Store using DynamoDB as the storage backend.
type Store struct {
	client *dynamodb.Client

	actionTable  string
	recordTable  string
	settingTable string
	now          func() time.Time
}

type actionItem struct {
	ID        string `json:"id" dynamodbav:"id"`
	Type      string `json:"type" dynamodbav:"type"`
	URL       string `json:"url" dynamodbav:"url"`
	Method    string `json:"method" dynamodbav:"method"`
	Headers   []byte `json:"headers" dynamodbav:"headers"`
	Body      []byte `json:"body" dynamodbav:"body"`
	CreatedAt int64  `json:"created_at" dynamodbav:"created_at"`
	Synced    bool   `json:"synced" dynamodbav:"synced"`
}

type recordItem struct {
	Key       string `json:"key" dynamodbav:"key"`
	Data      []byte `json:"data" dynamodbav:"data"`
	WrittenAt int64  `json:"written_at" dynamodbav:"written_at"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"`
}

type settingItem struct {
	Key   string `json:"key" dynamodbav:"key"`
	Value string `json:"value" dynamodbav:"value"`
}

func (s *Store) Insert(ctx context.Context, a store.QueuedAction) error {
	headers, err := encodeHeader(a.Header)
	if err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(actionItem{
		ID:        a.ID,
		Type:      a.Type,
		URL:       a.URL,
		Method:    a.Method,
		Headers:   headers,
		Body:      a.Body,
		CreatedAt: a.CreatedAt.UTC().UnixNano(),
		Synced:    a.Synced,
	})
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.actionTable),
		Item:      av,
	})
	return err
}

func (s *Store) Pending(ctx context.Context) ([]store.QueuedAction, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.actionTable),
		FilterExpression: aws.String("synced = :synced"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":synced": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return nil, err
	}

	var items []actionItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt < items[j].CreatedAt
	})

	actions := make([]store.QueuedAction, 0, len(items))
	for _, item := range items {
		h, err := decodeHeader(item.Headers)
		if err != nil {
			return nil, err
		}
		actions = append(actions, store.QueuedAction{
			ID:        item.ID,
			Type:      item.Type,
			URL:       item.URL,
			Method:    item.Method,
			Header:    h,
			Body:      item.Body,
			CreatedAt: time.Unix(0, item.CreatedAt).UTC(),
			Synced:    item.Synced,
		})
	}
	return actions, nil
}

func (s *Store) PendingCount(ctx context.Context) (int, error) {
	pending, err := s.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

func (s *Store) MarkSynced(ctx context.Context, id string) error {
	key, err := attributevalue.Marshal(id)
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.actionTable),
		Key: map[string]types.AttributeValue{
			"id": key,
		},
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":synced": &types.AttributeValueMemberBOOL{Value: true},
		},
		UpdateExpression: aws.String("SET synced = :synced"),
	})
	return err
}

func (s *Store) GetRecord(ctx context.Context, k string) (*store.DataRecord, error) {
	key, err := attributevalue.Marshal(k)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		Key: map[string]types.AttributeValue{
			"key": key,
		},
		ConsistentRead: aws.Bool(true),
		TableName:      aws.String(s.recordTable),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, store.ErrNoRecord
	}

	var item recordItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}

	rec := store.DataRecord{
		Key:       item.Key,
		Data:      item.Data,
		WrittenAt: time.Unix(0, item.WrittenAt).UTC(),
		ExpiresAt: time.Unix(0, item.ExpiresAt).UTC(),
	}
	if rec.Expired(s.now().UTC()) {
		return &rec, store.ErrRecordExpired
	}
	return &rec, nil
}

func (s *Store) PutRecord(ctx context.Context, rec store.DataRecord) error {
	av, err := attributevalue.MarshalMap(recordItem{
		Key:       rec.Key,
		Data:      rec.Data,
		WrittenAt: rec.WrittenAt.UTC().UnixNano(),
		ExpiresAt: rec.ExpiresAt.UTC().UnixNano(),
	})
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.recordTable),
		Item:      av,
	})
	return err
}

func (s *Store) GetSetting(ctx context.Context, k string) (string, error) {
	key, err := attributevalue.Marshal(k)
	if err != nil {
		return "", err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		Key: map[string]types.AttributeValue{
			"key": key,
		},
		ConsistentRead: aws.Bool(true),
		TableName:      aws.String(s.settingTable),
	})
	if err != nil {
		return "", err
	}
	if out.Item == nil {
		return "", store.ErrNoSetting
	}

	var item settingItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", err
	}
	return item.Value, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	av, err := attributevalue.MarshalMap(settingItem{
		Key:   key,
		Value: value,
	})
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.settingTable),
		Item:      av,
	})
	return err
}

func encodeHeader(h http.Header) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	var buff bytes.Buffer
	if err := gob.NewEncoder(&buff).Encode(h); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

func decodeHeader(raw []byte) (http.Header, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var h http.Header
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&h); err != nil {
		return nil, err
	}
	return h, nil
}

// New creates a new DynamoDB store instance with the provided
// configuration. It validates the configuration and sets default values
// where appropriate. Returns an error if the client is nil or a table name
// is missing.
func New(_ context.Context, client *dynamodb.Client, config *Config) (*Store, error) {
	if client == nil {
		return nil, caches.ValidationError{Reason: "nil client"}
	}
	if config == nil || config.ActionTable == "" || config.RecordTable == "" || config.SettingTable == "" {
		return nil, caches.ValidationError{Reason: "missing table name"}
	}

	return &Store{
		client: client,

		actionTable:  config.ActionTable,
		recordTable:  config.RecordTable,
		settingTable: config.SettingTable,
		now:          time.Now,
	}, nil
}

package store

import "errors"

var (
	ErrNoRecord      = errors.New("no record found in store")
	ErrRecordExpired = errors.New("record expired")
	ErrNoSetting     = errors.New("setting not found")
	ErrNoAction      = errors.New("queued action not found")
)

// Package postgres implements the durable store on PostgreSQL. Intended
// for deployments where the engine runs on a box with a local database
// rather than an embedded file store.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/gob"
	"errors"
	"log"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/dgduncan/go-offline-sync/caches"
	"github.com/dgduncan/go-offline-sync/store"
)

var (
	// ErrPingFailed is returned if the initial ping to the database returns an error
	ErrPingFailed = errors.New("ping returned error")
)

var (
	//go:embed create_tables.sql
	queryCreateTables string
	//go:embed insert_action.sql
	queryInsertAction string
	//go:embed pending_actions.sql
	queryPendingActions string
	//go:embed count_pending.sql
	queryCountPending string
	//go:embed mark_synced.sql
	queryMarkSynced string
	//go:embed fetch_record.sql
	queryFetchRecord string
	//go:embed upsert_record.sql
	queryUpsertRecord string
	//go:embed delete_expired.sql
	queryDeleteExpired string
	//go:embed fetch_setting.sql
	queryFetchSetting string
	//go:embed upsert_setting.sql
	queryUpsertSetting string
)

// Config defines the configuration options for the PostgreSQL store.
type Config struct {
	// DeleteExpiredRecords enables a background sweep of expired cached_data
	// rows. Lazy expiry already keeps reads correct; the sweep only bounds
	// table growth.
	DeleteExpiredRecords bool

	// ExpiredTaskTimer defines the interval at which the sweep runs.
	ExpiredTaskTimer time.Duration
}

// Store implements store.Store using PostgreSQL as the storage backend.
type Store struct {
	db *sql.DB
}

func (p *Store) Insert(ctx context.Context, a store.QueuedAction) error {
	stmt, err := p.db.PrepareContext(ctx, queryInsertAction)
	if err != nil {
		return err
	}
	defer stmt.Close()

	headers, err := encodeHeader(a.Header)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx, a.ID, a.Type, a.URL, a.Method, headers, a.Body, a.CreatedAt.UTC(), a.Synced)
	return err
}

func (p *Store) Pending(ctx context.Context) ([]store.QueuedAction, error) {
	stmt, err := p.db.PrepareContext(ctx, queryPendingActions)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.QueuedAction
	for rows.Next() {
		var a store.QueuedAction
		var headers []byte
		if err := rows.Scan(&a.ID, &a.Type, &a.URL, &a.Method, &headers, &a.Body, &a.CreatedAt, &a.Synced); err != nil {
			return nil, err
		}
		h, err := decodeHeader(headers)
		if err != nil {
			return nil, err
		}
		a.Header = h
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Store) PendingCount(ctx context.Context) (int, error) {
	stmt, err := p.db.PrepareContext(ctx, queryCountPending)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var n int
	if err := stmt.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Store) MarkSynced(ctx context.Context, id string) error {
	stmt, err := p.db.PrepareContext(ctx, queryMarkSynced)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNoAction
	}
	return nil
}

func (p *Store) GetRecord(ctx context.Context, key string) (*store.DataRecord, error) {
	stmt, err := p.db.PrepareContext(ctx, queryFetchRecord)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var rec store.DataRecord
	err = stmt.QueryRowContext(ctx, key).Scan(&rec.Key, &rec.Data, &rec.WrittenAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoRecord
		}
		return nil, err
	}
	return &rec, nil
}

func (p *Store) PutRecord(ctx context.Context, rec store.DataRecord) error {
	stmt, err := p.db.PrepareContext(ctx, queryUpsertRecord)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, rec.Key, rec.Data, rec.WrittenAt.UTC(), rec.ExpiresAt.UTC())
	return err
}

func (p *Store) GetSetting(ctx context.Context, key string) (string, error) {
	stmt, err := p.db.PrepareContext(ctx, queryFetchSetting)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	var value string
	err = stmt.QueryRowContext(ctx, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNoSetting
		}
		return "", err
	}
	return value, nil
}

func (p *Store) PutSetting(ctx context.Context, key, value string) error {
	stmt, err := p.db.PrepareContext(ctx, queryUpsertSetting)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, key, value)
	return err
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, queryCreateTables)
	return err
}

func deleteExpiredRecords(ctx context.Context, db *sql.DB) error {
	stmt, err := db.PrepareContext(ctx, queryDeleteExpired)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx)
	return err
}

func expiredTask(ctx context.Context, db *sql.DB, every time.Duration) {
	t := time.NewTimer(every)

	for {
		select {
		case <-ctx.Done():
			log.Println("context is done")
			return
		case <-t.C:
			if err := deleteExpiredRecords(ctx, db); err != nil {
				log.Println(err)
			}
			_ = t.Reset(every)
		}
	}
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

// New creates a new PostgreSQL store with the provided configuration.
// It verifies the database connection, creates the table structure, and
// optionally starts the cleanup task for expired cached_data rows.
func New(ctx context.Context, db *sql.DB, config *Config) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(ErrPingFailed, err)
	}

	if err := createTables(ctx, db); err != nil {
		return nil, err
	}

	if config != nil && config.DeleteExpiredRecords {
		every := config.ExpiredTaskTimer
		if every <= 0 {
			every = caches.DefaultExpiredTaskTimer
		}
		go expiredTask(ctx, db, every)
	}

	return &Store{db: db}, nil
}

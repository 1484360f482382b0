package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"chatmedia/internal/logging"
)

// ErrSourceMissing indicates no raw blob exists for the requested attachment.
var ErrSourceMissing = errors.New("source blob missing")

// Default timeout for store queries.
const defaultTimeout = 5 * time.Second

// VoiceStore reads raw speech-codec payloads out of the chat client's
// voice message database, keyed by (sender, timestamp).
type VoiceStore struct {
	db     *sql.DB
	dbPath string
}

// OpenVoiceStore opens (and if needed initializes) the voice blob
// database. dbPath must point at the database file; the parent
// directory must exist.
func OpenVoiceStore(ctx context.Context, dbPath string) (*VoiceStore, error) {
	logging.Info("Voice store path: %s", dbPath)

	// WAL and busy_timeout keep concurrent pipeline readers from
	// tripping over "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open voice store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close voice store after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to voice store: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &VoiceStore{db: db, dbPath: dbPath}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close voice store after init failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize voice store schema: %w", err)
	}

	return s, nil
}

func (s *VoiceStore) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS voice_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		local_id INTEGER NOT NULL,
		payload BLOB NOT NULL,
		UNIQUE(sender_id, created_at, local_id)
	);
	CREATE INDEX IF NOT EXISTS idx_voice_sender_time ON voice_messages(sender_id, created_at);
	`
	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(initCtx, schema)
	return err
}

// VoiceBlob returns the raw speech-codec payload and local message id
// for the voice note sent by senderID at timestamp. Returns
// ErrSourceMissing when no row matches.
func (s *VoiceStore) VoiceBlob(ctx context.Context, senderID string, timestamp time.Time) ([]byte, int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var payload []byte
	var localID int64
	err := s.db.QueryRowContext(queryCtx,
		`SELECT payload, local_id FROM voice_messages WHERE sender_id = ? AND created_at = ? LIMIT 1`,
		senderID, timestamp.Unix(),
	).Scan(&payload, &localID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("voice blob for %s at %d: %w", senderID, timestamp.Unix(), ErrSourceMissing)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("voice blob query: %w", err)
	}
	if len(payload) == 0 {
		return nil, 0, fmt.Errorf("voice blob for %s at %d is empty: %w", senderID, timestamp.Unix(), ErrSourceMissing)
	}
	return payload, localID, nil
}

// InsertVoice stores a raw voice payload. Used by the archive ingest
// tooling; the pipeline itself never writes back to source stores.
func (s *VoiceStore) InsertVoice(ctx context.Context, senderID string, timestamp time.Time, localID int64, payload []byte) error {
	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(execCtx,
		`INSERT OR IGNORE INTO voice_messages (sender_id, created_at, local_id, payload) VALUES (?, ?, ?, ?)`,
		senderID, timestamp.Unix(), localID, payload,
	)
	if err != nil {
		return fmt.Errorf("insert voice blob: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *VoiceStore) Close() error {
	return s.db.Close()
}

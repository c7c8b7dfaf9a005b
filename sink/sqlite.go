package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/AbNAt-Cell/NoteTaker/segment"
	"github.com/AbNAt-Cell/NoteTaker/stt"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transcripts (
    uid TEXT PRIMARY KEY,
    platform TEXT NOT NULL DEFAULT '',
    meeting_id TEXT NOT NULL DEFAULT '',
    speaker_epoch INTEGER NOT NULL DEFAULT 0,
    segment_count INTEGER NOT NULL,
    segments TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transcripts_meeting ON transcripts(platform, meeting_id);
`

const sqliteUpsert = `
INSERT INTO transcripts (uid, platform, meeting_id, speaker_epoch, segment_count, segments, updated_at)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (uid) DO UPDATE SET
    speaker_epoch = excluded.speaker_epoch,
    segment_count = excluded.segment_count,
    segments = excluded.segments,
    updated_at = CURRENT_TIMESTAMP
WHERE transcripts.segment_count <= excluded.segment_count`

// SQLite keeps the latest snapshot per stream in a local file, for
// running without a database server.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) StoreTranscript(ctx context.Context, msg stt.DurableMessage) error {
	segments, err := json.Marshal(msg.Segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		sqliteUpsert,
		msg.UID,
		msg.Platform,
		msg.MeetingID,
		msg.SpeakerEpoch,
		len(msg.Segments),
		string(segments),
	)
	if err != nil {
		return fmt.Errorf("upsert transcript %s: %w", msg.UID, err)
	}
	return nil
}

// Load returns the stored history of a stream, or nil when there is
// none.
func (s *SQLite) Load(ctx context.Context, uid string) ([]segment.Segment, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT segments FROM transcripts WHERE uid = ?", uid).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", uid, err)
	}
	var segs []segment.Segment
	if err := json.Unmarshal([]byte(raw), &segs); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", uid, err)
	}
	return segs, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

package sink

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AbNAt-Cell/NoteTaker/stt"
)

//go:embed schema.sql
var schema string

// A snapshot only replaces a stored one with at least as many
// segments, so late deliveries cannot shrink the history.
const upsertSnapshot = `
INSERT INTO transcript_snapshots
    (uid, token, platform, meeting_id, speaker_epoch, segment_count, segments, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (uid) DO UPDATE SET
    speaker_epoch = EXCLUDED.speaker_epoch,
    segment_count = EXCLUDED.segment_count,
    segments = EXCLUDED.segments,
    updated_at = now()
WHERE transcript_snapshots.segment_count <= EXCLUDED.segment_count`

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres keeps the latest finalized history of each stream as one
// row.
type Postgres struct {
	db Execer
}

func NewPostgres(db Execer) *Postgres {
	return &Postgres{db: db}
}

func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := NewPostgres(pool).Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute embedded schema.sql: %w", err)
	}
	return nil
}

func (p *Postgres) StoreTranscript(ctx context.Context, msg stt.DurableMessage) error {
	segments, err := json.Marshal(msg.Segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	_, err = p.db.Exec(
		ctx,
		upsertSnapshot,
		msg.UID,
		msg.Token,
		msg.Platform,
		msg.MeetingID,
		msg.SpeakerEpoch,
		len(msg.Segments),
		segments,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", msg.UID, err)
	}
	return nil
}

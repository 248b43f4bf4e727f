package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/incident-sync/internal/domain"
)

// DB is the part of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FrameRepository stores inbound realtime frames for diagnostics.
type FrameRepository interface {
	Append(ctx context.Context, entry *domain.JournalEntry) error
	ListByIncident(ctx context.Context, incidentUUID string, limit int) ([]domain.JournalEntry, error)
	Recent(ctx context.Context, limit int) ([]domain.JournalEntry, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

type frameRepository struct {
	db DB
}

// NewFrameRepository builds repository.
func NewFrameRepository(db DB) FrameRepository {
	return &frameRepository{db: db}
}

func (r *frameRepository) Append(ctx context.Context, entry *domain.JournalEntry) error {
	const query = `
        INSERT INTO incident_frames (event_name, incident_uuid, payload, received_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		entry.EventName,
		entry.IncidentUUID,
		entry.Payload,
		entry.ReceivedAt,
	).Scan(&entry.ID)
}

func (r *frameRepository) ListByIncident(ctx context.Context, incidentUUID string, limit int) ([]domain.JournalEntry, error) {
	const query = `
        SELECT id, event_name, incident_uuid, payload, received_at
        FROM incident_frames WHERE incident_uuid=$1
        ORDER BY received_at DESC, id DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, incidentUUID, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *frameRepository) Recent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	const query = `
        SELECT id, event_name, incident_uuid, payload, received_at
        FROM incident_frames ORDER BY received_at DESC, id DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Prune keeps the newest keep frames and deletes the rest.
func (r *frameRepository) Prune(ctx context.Context, keep int) (int64, error) {
	const query = `
        DELETE FROM incident_frames
        WHERE id NOT IN (SELECT id FROM incident_frames ORDER BY id DESC LIMIT $1)`
	tag, err := r.db.Exec(ctx, query, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanEntries(rows pgx.Rows) ([]domain.JournalEntry, error) {
	defer rows.Close()

	result := []domain.JournalEntry{}
	for rows.Next() {
		var entry domain.JournalEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.EventName,
			&entry.IncidentUUID,
			&entry.Payload,
			&entry.ReceivedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Row is the subset of pgx used to persist events.
type Row interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewStore persists events in the domain_events table.
func NewStore(db Row) EventStore {
	return &pgStore{db: db}
}

type pgStore struct {
	db Row
}

func (s *pgStore) Insert(ctx context.Context, ev Event) (Event, error) {
	if s == nil || s.db == nil {
		return Event{}, errors.New("events: database not configured")
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	var actor *string
	if ev.Actor != "" {
		actor = &ev.Actor
	}
	err := s.db.QueryRow(ctx, `INSERT INTO domain_events (id, topic, aggregate_id, actor, payload)
VALUES ($1, $2, $3, $4, $5) RETURNING occurred_at`,
		ev.ID, ev.Topic, ev.AggregateID, actor, []byte(ev.Payload)).Scan(&ev.OccurredAt)
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

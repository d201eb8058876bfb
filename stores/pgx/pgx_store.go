// Package pgx is a PostgreSQL-backed ges.EventRepository/SnapshotRepository
// pair using jackc/pgx/v5. OCC is enforced with SELECT ... FOR UPDATE to
// serialize concurrent appenders on the same stream, backstopped by a
// unique constraint on (stream_id, version) so a race that slips past the
// row lock still fails atomically rather than double-writing a version.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/epochal/ges"
)

// Store is a category-scoped EventRepository/SnapshotRepository backed by
// a Postgres connection pool. One Store represents one category: events
// of every stream written through it share that category column value, so
// a category read (Load with streamID == "") is a plain WHERE category = $1.
type Store struct {
	pool         *pgxpool.Pool
	category     string
	typeRegistry map[string]ges.EventCodec
	extractor    ges.MetadataExtractor
}

// Option configures a Store.
type Option func(*Store)

// WithTypeRegistry sets the registry mapping event type names to codecs.
func WithTypeRegistry(reg map[string]ges.EventCodec) Option {
	return func(s *Store) { s.typeRegistry = reg }
}

// WithMetadataExtractor sets a function that builds Metadata from context;
// when provided, Append stamps every inserted row with the Metadata it
// returns.
func WithMetadataExtractor(ex ges.MetadataExtractor) Option {
	return func(s *Store) { s.extractor = ex }
}

// New creates a category-scoped Postgres Store. Run schema.sql's DDL
// against the pool's database before first use.
func New(pool *pgxpool.Pool, category string, opts ...Option) *Store {
	s := &Store{
		pool:         pool,
		category:     category,
		typeRegistry: map[string]ges.EventCodec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append implements ges.EventRepository.
func (s *Store) Append(ctx context.Context, expected ges.Version[int64], streamID string, events []ges.Event) ([]ges.Event, ges.Version[int64], error) {
	if streamID == "" {
		return nil, ges.Version[int64]{}, ges.ErrCategoryAppend
	}

	var md ges.Metadata
	if s.extractor != nil {
		md = s.extractor(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: begin: %w", err)}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the stream's latest row; a stream with no rows yet locks nothing
	// and relies on the (stream_id, version) primary key instead.
	var current int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM events WHERE stream_id = $1 ORDER BY version DESC LIMIT 1 FOR UPDATE`,
		streamID,
	).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: read current version: %w", err)}
	}
	actual := versionFromCount(current)

	if !expected.IsAny() && !versionMatchesCount(expected, current) {
		return nil, actual, &ges.VersionConflictError[int64]{
			StreamID: streamID,
			Diff:     ges.VersionDiff[int64]{Expected: expected, Actual: actual},
		}
	}

	if len(events) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, actual, &ges.RepositoryError{Cause: fmt.Errorf("pgx: commit: %w", err)}
		}
		return nil, actual, nil
	}

	now := time.Now()
	for _, e := range events {
		eventType := ges.EventType(e)
		codec := s.typeRegistry[eventType]
		if codec == nil {
			return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: no codec registered for event type %q", eventType)}
		}
		payload, err := codec.Encode(e)
		if err != nil {
			return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: encode event: %w", err)}
		}
		meta, err := json.Marshal(md)
		if err != nil {
			return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: encode metadata: %w", err)}
		}

		current++
		if _, err := tx.Exec(ctx,
			`INSERT INTO events (id, stream_id, category, version, event_type, payload, metadata, at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.NewString(), streamID, s.category, current, eventType, payload, meta, now,
		); err != nil {
			if isUniqueViolation(err) {
				return nil, actual, &ges.VersionConflictError[int64]{
					StreamID: streamID,
					Diff:     ges.VersionDiff[int64]{Expected: expected, Actual: actual},
				}
			}
			return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: insert event: %w", err)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: commit: %w", err)}
	}
	return events, versionFromCount(current), nil
}

// Load implements ges.EventRepository. streamID == "" reads every stream
// sharing this Store's category, ordered by (at, version) for a stable
// cross-stream merge.
func (s *Store) Load(ctx context.Context, streamID string) ([]ges.Event, ges.Version[int64], error) {
	if streamID == "" {
		return s.loadCategory(ctx)
	}
	return s.loadFromVersion(ctx, streamID, 0)
}

// LoadFrom implements ges.EventRepository.
func (s *Store) LoadFrom(ctx context.Context, from ges.Version[int64], streamID string) ([]ges.Event, ges.Version[int64], error) {
	if streamID == "" {
		return nil, ges.Version[int64]{}, ges.ErrCategoryAppend
	}
	fromVersion := int64(0)
	if v, ok := from.Exact(); ok {
		fromVersion = v
	}
	return s.loadFromVersion(ctx, streamID, fromVersion)
}

func (s *Store) loadFromVersion(ctx context.Context, streamID string, fromVersion int64) ([]ges.Event, ges.Version[int64], error) {
	rows, err := s.pool.Query(ctx,
		`SELECT version, event_type, payload FROM events
		 WHERE stream_id = $1 AND version > $2
		 ORDER BY version ASC`,
		streamID, fromVersion,
	)
	if err != nil {
		return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: query events: %w", err)}
	}
	defer rows.Close()

	events, last, err := s.decodeRows(rows)
	if err != nil {
		return nil, ges.Version[int64]{}, err
	}
	if last == 0 {
		// No new rows past fromVersion: report the stream's current
		// version so a repeated Load is idempotent rather than regressing
		// to NoStream.
		var current int64
		if qerr := s.pool.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`, streamID,
		).Scan(&current); qerr != nil {
			return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: read current version: %w", qerr)}
		}
		return events, versionFromCount(current), nil
	}
	return events, versionFromCount(last), nil
}

func (s *Store) loadCategory(ctx context.Context) ([]ges.Event, ges.Version[int64], error) {
	rows, err := s.pool.Query(ctx,
		`SELECT version, event_type, payload FROM events
		 WHERE category = $1
		 ORDER BY at ASC, version ASC`,
		s.category,
	)
	if err != nil {
		return nil, ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: query category: %w", err)}
	}
	defer rows.Close()

	events, _, err := s.decodeRows(rows)
	if err != nil {
		return nil, ges.Version[int64]{}, err
	}
	return events, ges.Any[int64](), nil
}

func (s *Store) decodeRows(rows pgx.Rows) ([]ges.Event, int64, error) {
	var out []ges.Event
	var last int64
	for rows.Next() {
		var version int64
		var eventType string
		var payload []byte
		if err := rows.Scan(&version, &eventType, &payload); err != nil {
			return nil, 0, &ges.RepositoryError{Cause: fmt.Errorf("pgx: scan event: %w", err)}
		}
		codec := s.typeRegistry[eventType]
		if codec == nil {
			return nil, 0, &ges.RepositoryError{Cause: fmt.Errorf("pgx: no codec registered for event type %q", eventType)}
		}
		ev, err := codec.Decode(payload)
		if err != nil {
			return nil, 0, &ges.RepositoryError{Cause: fmt.Errorf("pgx: decode event: %w", err)}
		}
		out = append(out, ev)
		last = version
	}
	return out, last, nil
}

func versionFromCount(count int64) ges.Version[int64] {
	if count == 0 {
		return ges.NoStreamVersion[int64]()
	}
	return ges.ExactVersion(count)
}

func versionMatchesCount(expected ges.Version[int64], count int64) bool {
	switch {
	case expected.IsNoStream():
		return count == 0
	case expected.IsStreamExists():
		return count > 0
	default:
		v, _ := expected.Exact()
		return v == count
	}
}

// Reify implements ges.SnapshotRepository.
func (s *Store) Reify(ctx context.Context, streamID string) (ges.Snapshot[any, int64], error) {
	row := s.pool.QueryRow(ctx,
		`SELECT version, state, at FROM snapshots WHERE stream_id = $1`, streamID)

	var version int64
	var raw []byte
	var at time.Time
	if err := row.Scan(&version, &raw, &at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ges.Snapshot[any, int64]{Version: ges.NoStreamVersion[int64]()}, nil
		}
		return ges.Snapshot[any, int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: scan snapshot: %w", err)}
	}

	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return ges.Snapshot[any, int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: unmarshal snapshot: %w", err)}
	}

	return ges.Snapshot[any, int64]{
		State:   state,
		Version: ges.ExactVersion(version),
		Found:   true,
		At:      at,
	}, nil
}

// Save implements ges.SnapshotRepository.
func (s *Store) Save(ctx context.Context, expected ges.Version[int64], streamID string, state any) (ges.Version[int64], error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: begin: %w", err)}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current int64
	err = tx.QueryRow(ctx, `SELECT version FROM snapshots WHERE stream_id = $1 FOR UPDATE`, streamID).Scan(&current)
	found := true
	if errors.Is(err, pgx.ErrNoRows) {
		found = false
		err = nil
	}
	if err != nil {
		return ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: read current snapshot version: %w", err)}
	}

	actual := ges.NoStreamVersion[int64]()
	if found {
		actual = ges.ExactVersion(current)
	}
	if !expected.IsAny() && !expected.Equal(actual) {
		return ges.Version[int64]{}, &ges.VersionConflictError[int64]{
			StreamID: streamID,
			Diff:     ges.VersionDiff[int64]{Expected: expected, Actual: actual},
		}
	}

	data, err := json.Marshal(state)
	if err != nil {
		return ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: marshal state: %w", err)}
	}

	next := current + 1
	now := time.Now()
	if found {
		tag, err := tx.Exec(ctx,
			`UPDATE snapshots SET version = $3, state = $4, at = $5
			 WHERE stream_id = $1 AND version = $2`,
			streamID, current, next, data, now,
		)
		if err != nil {
			return ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: update snapshot: %w", err)}
		}
		if tag.RowsAffected() == 0 {
			return ges.Version[int64]{}, &ges.VersionConflictError[int64]{
				StreamID: streamID,
				Diff:     ges.VersionDiff[int64]{Expected: expected, Actual: actual},
			}
		}
	} else {
		if _, err := tx.Exec(ctx,
			`INSERT INTO snapshots (stream_id, version, state, at) VALUES ($1, $2, $3, $4)`,
			streamID, next, data, now,
		); err != nil {
			if isUniqueViolation(err) {
				return ges.Version[int64]{}, &ges.VersionConflictError[int64]{
					StreamID: streamID,
					Diff:     ges.VersionDiff[int64]{Expected: expected, Actual: actual},
				}
			}
			return ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: insert snapshot: %w", err)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ges.Version[int64]{}, &ges.RepositoryError{Cause: fmt.Errorf("pgx: commit: %w", err)}
	}
	return ges.ExactVersion(next), nil
}

var _ ges.EventRepository[int64] = (*Store)(nil)
var _ ges.SnapshotRepository[int64, any] = (*Store)(nil)

// Package redis is a Redis Streams-backed ges.EventRepository, using
// redis/go-redis/v9. Each per-entity stream is a native Redis Stream; OCC
// is enforced with WATCH/MULTI so a writer racing against a concurrent
// XADD aborts instead of interleaving, and the version it observes on
// conflict is the Redis-native entry id of the other writer's last event.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/epochal/ges"
)

// Store is a category-scoped EventRepository over Redis Streams. One
// Store represents one category: every stream key it writes is recorded
// in a companion Set (the category index) so Load("") can enumerate and
// merge them.
type Store struct {
	client       *redis.Client
	category     string
	typeRegistry map[string]ges.EventCodec
}

// Option configures a Store.
type Option func(*Store)

// WithTypeRegistry sets the registry mapping event type names to codecs.
func WithTypeRegistry(reg map[string]ges.EventCodec) Option {
	return func(s *Store) { s.typeRegistry = reg }
}

// New creates a category-scoped Redis Streams Store.
func New(client *redis.Client, category string, opts ...Option) *Store {
	s := &Store{client: client, category: category, typeRegistry: map[string]ges.EventCodec{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) categoryIndexKey() string {
	return "ges:cat:" + s.category
}

// Append implements ges.EventRepository.
func (s *Store) Append(ctx context.Context, expected ges.Version[StreamVersion], streamID string, events []ges.Event) ([]ges.Event, ges.Version[StreamVersion], error) {
	if streamID == "" {
		return nil, ges.Version[StreamVersion]{}, ges.ErrCategoryAppend
	}
	if len(events) == 0 {
		actual, err := s.lastVersion(ctx, streamID)
		if err != nil {
			return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: err}
		}
		if !expected.IsAny() && !versionMatches(expected, actual) {
			return nil, actual, &ges.VersionConflictError[StreamVersion]{
				StreamID: streamID,
				Diff:     ges.VersionDiff[StreamVersion]{Expected: expected, Actual: actual},
			}
		}
		return nil, actual, nil
	}

	fields, err := s.encodeAll(events)
	if err != nil {
		return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: err}
	}

	var lastID string
	txErr := s.client.Watch(ctx, func(tx *redis.Tx) error {
		actual, err := s.lastVersionTx(ctx, tx, streamID)
		if err != nil {
			return err
		}
		if !expected.IsAny() && !versionMatches(expected, actual) {
			return &ges.VersionConflictError[StreamVersion]{
				StreamID: streamID,
				Diff:     ges.VersionDiff[StreamVersion]{Expected: expected, Actual: actual},
			}
		}

		cmds, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, f := range fields {
				pipe.XAdd(ctx, &redis.XAddArgs{Stream: streamID, Values: f})
			}
			pipe.SAdd(ctx, s.categoryIndexKey(), streamID)
			return nil
		})
		if err != nil {
			return err
		}
		// The last XAdd result is the second-to-last command (SAdd is last).
		lastID = cmds[len(cmds)-2].(*redis.StringCmd).Val()
		return nil
	}, streamID)

	if txErr != nil {
		var conflict *ges.VersionConflictError[StreamVersion]
		if errors.As(txErr, &conflict) {
			return nil, conflict.Diff.Actual, conflict
		}
		if errors.Is(txErr, redis.TxFailedErr) {
			actual, rerr := s.lastVersion(ctx, streamID)
			if rerr != nil {
				return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: rerr}
			}
			return nil, actual, &ges.VersionConflictError[StreamVersion]{
				StreamID: streamID,
				Diff:     ges.VersionDiff[StreamVersion]{Expected: expected, Actual: actual},
			}
		}
		return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: txErr}
	}

	version, err := ParseStreamVersion(lastID)
	if err != nil {
		return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: err}
	}
	return events, ges.ExactVersion(version), nil
}

// Load implements ges.EventRepository.
func (s *Store) Load(ctx context.Context, streamID string) ([]ges.Event, ges.Version[StreamVersion], error) {
	if streamID == "" {
		return s.loadCategory(ctx)
	}
	return s.loadRange(ctx, streamID, "-")
}

// LoadFrom implements ges.EventRepository.
func (s *Store) LoadFrom(ctx context.Context, from ges.Version[StreamVersion], streamID string) ([]ges.Event, ges.Version[StreamVersion], error) {
	if streamID == "" {
		return nil, ges.Version[StreamVersion]{}, ges.ErrCategoryAppend
	}
	lower := "-"
	if v, ok := from.Exact(); ok {
		lower = fmt.Sprintf("(%s", v.String())
	}
	return s.loadRange(ctx, streamID, lower)
}

func (s *Store) loadRange(ctx context.Context, streamID, lower string) ([]ges.Event, ges.Version[StreamVersion], error) {
	msgs, err := s.client.XRange(ctx, streamID, lower, "+").Result()
	if err != nil {
		return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: fmt.Errorf("redis: xrange %s: %w", streamID, err)}
	}
	if len(msgs) == 0 {
		actual, err := s.lastVersion(ctx, streamID)
		if err != nil {
			return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: err}
		}
		return nil, actual, nil
	}

	events, err := s.decodeMessages(msgs)
	if err != nil {
		return nil, ges.Version[StreamVersion]{}, err
	}
	last, err := ParseStreamVersion(msgs[len(msgs)-1].ID)
	if err != nil {
		return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: err}
	}
	return events, ges.ExactVersion(last), nil
}

func (s *Store) loadCategory(ctx context.Context) ([]ges.Event, ges.Version[StreamVersion], error) {
	members, err := s.client.SMembers(ctx, s.categoryIndexKey()).Result()
	if err != nil {
		return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: fmt.Errorf("redis: smembers: %w", err)}
	}

	type versioned struct {
		version StreamVersion
		event   ges.Event
	}
	var all []versioned

	for _, streamID := range members {
		msgs, err := s.client.XRange(ctx, streamID, "-", "+").Result()
		if err != nil {
			return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: fmt.Errorf("redis: xrange %s: %w", streamID, err)}
		}
		for _, m := range msgs {
			v, err := ParseStreamVersion(m.ID)
			if err != nil {
				return nil, ges.Version[StreamVersion]{}, &ges.RepositoryError{Cause: err}
			}
			ev, err := s.decodeMessage(m)
			if err != nil {
				return nil, ges.Version[StreamVersion]{}, err
			}
			all = append(all, versioned{version: v, event: ev})
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].version.Less(all[j].version) })

	out := make([]ges.Event, len(all))
	for i, v := range all {
		out[i] = v.event
	}
	return out, ges.Any[StreamVersion](), nil
}

func (s *Store) lastVersion(ctx context.Context, streamID string) (ges.Version[StreamVersion], error) {
	msgs, err := s.client.XRevRangeN(ctx, streamID, "+", "-", 1).Result()
	if err != nil {
		return ges.Version[StreamVersion]{}, fmt.Errorf("redis: xrevrange %s: %w", streamID, err)
	}
	if len(msgs) == 0 {
		return ges.NoStreamVersion[StreamVersion](), nil
	}
	v, err := ParseStreamVersion(msgs[0].ID)
	if err != nil {
		return ges.Version[StreamVersion]{}, err
	}
	return ges.ExactVersion(v), nil
}

func (s *Store) lastVersionTx(ctx context.Context, tx *redis.Tx, streamID string) (ges.Version[StreamVersion], error) {
	msgs, err := tx.XRevRangeN(ctx, streamID, "+", "-", 1).Result()
	if err != nil {
		return ges.Version[StreamVersion]{}, fmt.Errorf("redis: xrevrange %s: %w", streamID, err)
	}
	if len(msgs) == 0 {
		return ges.NoStreamVersion[StreamVersion](), nil
	}
	v, err := ParseStreamVersion(msgs[0].ID)
	if err != nil {
		return ges.Version[StreamVersion]{}, err
	}
	return ges.ExactVersion(v), nil
}

func versionMatches(expected ges.Version[StreamVersion], actual ges.Version[StreamVersion]) bool {
	switch {
	case expected.IsNoStream():
		return actual.IsNoStream()
	case expected.IsStreamExists():
		return actual.IsExact()
	default:
		return expected.Equal(actual)
	}
}

func (s *Store) encodeAll(events []ges.Event) ([]map[string]any, error) {
	out := make([]map[string]any, len(events))
	for i, e := range events {
		eventType := ges.EventType(e)
		codec := s.typeRegistry[eventType]
		if codec == nil {
			return nil, fmt.Errorf("redis: no codec registered for event type %q", eventType)
		}
		payload, err := codec.Encode(e)
		if err != nil {
			return nil, fmt.Errorf("redis: encode event: %w", err)
		}
		entityID, _ := ges.EntityID(e)
		out[i] = map[string]any{
			"event_id":   uuid.NewString(),
			"event_type": eventType,
			"entity_id":  entityID,
			"payload":    string(payload),
		}
	}
	return out, nil
}

func (s *Store) decodeMessages(msgs []redis.XMessage) ([]ges.Event, error) {
	out := make([]ges.Event, len(msgs))
	for i, m := range msgs {
		ev, err := s.decodeMessage(m)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

func (s *Store) decodeMessage(m redis.XMessage) (ges.Event, error) {
	eventType, _ := m.Values["event_type"].(string)
	codec := s.typeRegistry[eventType]
	if codec == nil {
		return nil, &ges.RepositoryError{Cause: fmt.Errorf("redis: no codec registered for event type %q", eventType)}
	}
	payload, _ := m.Values["payload"].(string)
	ev, err := codec.Decode([]byte(payload))
	if err != nil {
		return nil, &ges.RepositoryError{Cause: fmt.Errorf("redis: decode event: %w", err)}
	}
	return ev, nil
}

var _ ges.EventRepository[StreamVersion] = (*Store)(nil)

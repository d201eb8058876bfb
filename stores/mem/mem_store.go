// Package mem is an in-memory ges.EventRepository/SnapshotRepository pair,
// suitable for tests and local runs. Events and snapshots live in-process
// and are lost on restart.
package mem

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/epochal/ges"
)

type storedEvent struct {
	id       string
	seq      int64
	payload  ges.Event
	metadata ges.Metadata
	at       time.Time
}

// streamLog is one per-entity stream: its own mutex, its own version
// counter. Appends to stream A never block appends to stream B — unlike
// the single global lock this package's teacher used, every write here is
// scoped to the stream it targets.
type streamLog struct {
	mu     sync.Mutex
	events []storedEvent
}

// Store is a category-scoped, per-stream-mutex in-memory EventRepository.
// One Store instance represents one category: every stream appended to it
// is a member of that category's virtual concatenation.
type Store struct {
	streamsMu sync.RWMutex
	streams   map[string]*streamLog

	seq atomic.Int64

	snapMu    sync.Mutex
	snapshots map[string]storedSnapshot

	extractor ges.MetadataExtractor
}

type storedSnapshot struct {
	version int64
	state   any
	at      time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMetadataExtractor sets a function that builds Metadata from context;
// when provided, Append stamps every stored event with the Metadata it
// returns.
func WithMetadataExtractor(ex ges.MetadataExtractor) Option {
	return func(s *Store) { s.extractor = ex }
}

// New creates an empty, category-scoped in-memory Store.
func New(opts ...Option) *Store {
	s := &Store{
		streams:   make(map[string]*streamLog),
		snapshots: make(map[string]storedSnapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) streamFor(streamID string) *streamLog {
	s.streamsMu.RLock()
	log, ok := s.streams[streamID]
	s.streamsMu.RUnlock()
	if ok {
		return log
	}

	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	log, ok = s.streams[streamID]
	if !ok {
		log = &streamLog{}
		s.streams[streamID] = log
	}
	return log
}

// Append implements ges.EventRepository.
func (s *Store) Append(ctx context.Context, expected ges.Version[int64], streamID string, events []ges.Event) ([]ges.Event, ges.Version[int64], error) {
	if streamID == "" {
		return nil, ges.Version[int64]{}, ges.ErrCategoryAppend
	}

	log := s.streamFor(streamID)
	log.mu.Lock()
	defer log.mu.Unlock()

	actual := currentVersion(log.events)
	if !expected.IsAny() && !versionMatches(expected, log.events) {
		return nil, actual, &ges.VersionConflictError[int64]{
			StreamID: streamID,
			Diff:     ges.VersionDiff[int64]{Expected: expected, Actual: actual},
		}
	}

	if len(events) == 0 {
		return nil, actual, nil
	}

	var md ges.Metadata
	if s.extractor != nil {
		md = s.extractor(ctx)
	}

	now := time.Now()
	for _, e := range events {
		log.events = append(log.events, storedEvent{
			id:       uuid.NewString(),
			seq:      s.seq.Add(1),
			payload:  e,
			metadata: md,
			at:       now,
		})
	}
	return events, currentVersion(log.events), nil
}

// Load implements ges.EventRepository. streamID == "" reads the category:
// every stream's events merged by the global append sequence.
func (s *Store) Load(_ context.Context, streamID string) ([]ges.Event, ges.Version[int64], error) {
	if streamID == "" {
		return s.loadCategory()
	}

	log := s.streamFor(streamID)
	log.mu.Lock()
	defer log.mu.Unlock()

	return payloads(log.events), currentVersion(log.events), nil
}

// LoadFrom implements ges.EventRepository: events strictly after `from`'s
// recorded position.
func (s *Store) LoadFrom(_ context.Context, from ges.Version[int64], streamID string) ([]ges.Event, ges.Version[int64], error) {
	if streamID == "" {
		return nil, ges.Version[int64]{}, ges.ErrCategoryAppend
	}

	log := s.streamFor(streamID)
	log.mu.Lock()
	defer log.mu.Unlock()

	fromIdx := int64(0)
	if v, ok := from.Exact(); ok {
		fromIdx = v
	}

	var out []ges.Event
	for i := fromIdx; i < int64(len(log.events)); i++ {
		out = append(out, log.events[i].payload)
	}
	return out, currentVersion(log.events), nil
}

func (s *Store) loadCategory() ([]ges.Event, ges.Version[int64], error) {
	s.streamsMu.RLock()
	logs := make([]*streamLog, 0, len(s.streams))
	for _, log := range s.streams {
		logs = append(logs, log)
	}
	s.streamsMu.RUnlock()

	var all []storedEvent
	for _, log := range logs {
		log.mu.Lock()
		all = append(all, log.events...)
		log.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	return payloads(all), ges.Any[int64](), nil
}

func payloads(events []storedEvent) []ges.Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]ges.Event, len(events))
	for i, e := range events {
		out[i] = e.payload
	}
	return out
}

// currentVersion reports ExactVersion(len(events)) once the stream has at
// least one event, else NoStreamVersion.
func currentVersion(events []storedEvent) ges.Version[int64] {
	if len(events) == 0 {
		return ges.NoStreamVersion[int64]()
	}
	return ges.ExactVersion(int64(len(events)))
}

func versionMatches(expected ges.Version[int64], events []storedEvent) bool {
	switch {
	case expected.IsNoStream():
		return len(events) == 0
	case expected.IsStreamExists():
		return len(events) > 0
	default:
		v, _ := expected.Exact()
		return v == int64(len(events))
	}
}

// Reify implements ges.SnapshotRepository.
func (s *Store) Reify(_ context.Context, streamID string) (ges.Snapshot[any, int64], error) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	snap, ok := s.snapshots[streamID]
	if !ok {
		return ges.Snapshot[any, int64]{Version: ges.NoStreamVersion[int64]()}, nil
	}
	return ges.Snapshot[any, int64]{
		State:   snap.state,
		Version: ges.ExactVersion(snap.version),
		Found:   true,
		At:      snap.at,
	}, nil
}

// Save implements ges.SnapshotRepository.
func (s *Store) Save(_ context.Context, expected ges.Version[int64], streamID string, state any) (ges.Version[int64], error) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	existing, ok := s.snapshots[streamID]
	actual := ges.NoStreamVersion[int64]()
	if ok {
		actual = ges.ExactVersion(existing.version)
	}

	if !expected.IsAny() && !expected.Equal(actual) {
		return ges.Version[int64]{}, &ges.VersionConflictError[int64]{
			StreamID: streamID,
			Diff:     ges.VersionDiff[int64]{Expected: expected, Actual: actual},
		}
	}

	next := existing.version + 1
	s.snapshots[streamID] = storedSnapshot{version: next, state: state, at: time.Now()}
	return ges.ExactVersion(next), nil
}

var _ ges.EventRepository[int64] = (*Store)(nil)
var _ ges.SnapshotRepository[int64, any] = (*Store)(nil)

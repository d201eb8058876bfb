package redis

import (
	"fmt"
	"strconv"
	"strings"
)

// StreamVersion is the Redis Streams native cursor: the "timestamp-seq"
// entry id Redis itself assigns on XADD, parsed into its two ordered
// components. Ported from the original implementation's RedisVersion,
// whose lexicographic string form is NOT numerically comparable once the
// sequence digit count differs — only the (timestamp, seq) pair is.
type StreamVersion struct {
	Timestamp int64
	Seq       int64
}

// ParseStreamVersion parses a Redis stream entry id of the form
// "<timestamp>-<seq>".
func ParseStreamVersion(id string) (StreamVersion, error) {
	ts, seq, ok := strings.Cut(id, "-")
	if !ok {
		return StreamVersion{}, fmt.Errorf("redis: malformed stream version %q", id)
	}
	t, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return StreamVersion{}, fmt.Errorf("redis: malformed stream version %q: %w", id, err)
	}
	s, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return StreamVersion{}, fmt.Errorf("redis: malformed stream version %q: %w", id, err)
	}
	return StreamVersion{Timestamp: t, Seq: s}, nil
}

func (v StreamVersion) String() string {
	return fmt.Sprintf("%d-%d", v.Timestamp, v.Seq)
}

// Less reports whether v sorts before other: by timestamp, then by seq.
func (v StreamVersion) Less(other StreamVersion) bool {
	if v.Timestamp != other.Timestamp {
		return v.Timestamp < other.Timestamp
	}
	return v.Seq < other.Seq
}

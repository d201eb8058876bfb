package redis_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/epochal/ges/stores/redis"
)

func TestStreamVersion_RoundTripAndOrder(t *testing.T) {
	ids := []string{
		"1686947654949-0",
		"1686947654949-1",
		"1686947676187-0",
		"1686947676187-1",
		"1686947697295-0",
		"1686947697295-1",
	}

	versions := make([]redis.StreamVersion, len(ids))
	for i, id := range ids {
		v, err := redis.ParseStreamVersion(id)
		require.NoError(t, err)
		require.Equal(t, id, v.String())
		versions[i] = v
	}

	shuffled := []redis.StreamVersion{versions[5], versions[0], versions[4], versions[1], versions[3], versions[2]}
	sort.Slice(shuffled, func(i, j int) bool { return shuffled[i].Less(shuffled[j]) })

	got := make([]string, len(shuffled))
	for i, v := range shuffled {
		got[i] = v.String()
	}
	require.Equal(t, ids, got)
}

func TestParseStreamVersion_Malformed(t *testing.T) {
	_, err := redis.ParseStreamVersion("not-a-valid-id-at-all")
	require.Error(t, err)
}

package ges_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/epochal/ges"
)

func TestVersion_Variants(t *testing.T) {
	require.True(t, ges.Any[int64]().IsAny())
	require.True(t, ges.NoStreamVersion[int64]().IsNoStream())
	require.True(t, ges.StreamExistsVersion[int64]().IsStreamExists())

	exact := ges.ExactVersion(int64(3))
	require.True(t, exact.IsExact())
	v, ok := exact.Exact()
	require.True(t, ok)
	require.Equal(t, int64(3), v)

	_, ok = ges.NoStreamVersion[int64]().Exact()
	require.False(t, ok)
}

func TestVersion_Equal(t *testing.T) {
	require.True(t, ges.ExactVersion(int64(3)).Equal(ges.ExactVersion(int64(3))))
	require.False(t, ges.ExactVersion(int64(3)).Equal(ges.ExactVersion(int64(4))))
	require.False(t, ges.ExactVersion(int64(3)).Equal(ges.NoStreamVersion[int64]()))
	require.True(t, ges.NoStreamVersion[int64]().Equal(ges.NoStreamVersion[int64]()))
}

func TestVersionDiff_String(t *testing.T) {
	diff := ges.VersionDiff[int64]{Expected: ges.ExactVersion(int64(3)), Actual: ges.ExactVersion(int64(5))}
	require.Equal(t, "expected=Exact(3) actual=Exact(5)", diff.String())
}

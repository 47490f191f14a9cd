package authority

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet_GetAndLen(t *testing.T) {
	s := NewSet(
		Record{ID: "auth-1", FirstBlock: 0},
		Record{ID: "auth-2", FirstBlock: 10},
	)
	require.Equal(t, 2, s.Len())

	r, ok := s.Get("auth-1")
	require.True(t, ok)
	require.Equal(t, uint64(0), r.FirstBlock)

	_, ok = s.Get("unknown")
	require.False(t, ok)
}

func TestSet_IsEmpty(t *testing.T) {
	require.True(t, NewSet().IsEmpty())
	require.False(t, NewSet(Record{ID: "auth-1"}).IsEmpty())
}

func TestSet_IsActiveAt_RespectsActivationWindow(t *testing.T) {
	last := uint64(20)
	s := NewSet(Record{ID: "auth-1", FirstBlock: 10, LastBlock: &last})

	require.False(t, s.IsActiveAt("auth-1", 9))
	require.True(t, s.IsActiveAt("auth-1", 10))
	require.True(t, s.IsActiveAt("auth-1", 20))
	require.False(t, s.IsActiveAt("auth-1", 21))
	require.False(t, s.IsActiveAt("unknown", 15))
}

func TestSet_IsActiveAt_NilLastBlockMeansStillActive(t *testing.T) {
	s := NewSet(Record{ID: "auth-1", FirstBlock: 5})
	require.True(t, s.IsActiveAt("auth-1", 1_000_000))
}

func TestSet_ActiveAt_ReturnsSortedRotationOrder(t *testing.T) {
	last := uint64(5)
	s := NewSet(
		Record{ID: "auth-z", FirstBlock: 0},
		Record{ID: "auth-a", FirstBlock: 0},
		Record{ID: "auth-retired", FirstBlock: 0, LastBlock: &last},
	)

	require.Equal(t, []string{"auth-a", "auth-z"}, s.ActiveAt(6))
	require.Equal(t, []string{"auth-a", "auth-retired", "auth-z"}, s.ActiveAt(5))
}

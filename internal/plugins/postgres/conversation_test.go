package postgres

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectKey_StableAcrossParticipantOrder(t *testing.T) {
	require := require.New(t)

	a := []string{"bob", "alice"}
	b := []string{"alice", "bob"}
	sort.Strings(a)
	sort.Strings(b)

	// Concurrent creators on different instances must derive the identical
	// key, or the unique constraint cannot collapse their inserts.
	require.Equal(directKey(a), directKey(b))
}

func TestDirectKey_DistinctSetsDistinctKeys(t *testing.T) {
	require := require.New(t)

	require.NotEqual(directKey([]string{"alice", "bob"}), directKey([]string{"alice", "carol"}))
	require.NotEqual(directKey([]string{"alice", "bob"}), directKey([]string{"alice", "bob", "carol"}))
}

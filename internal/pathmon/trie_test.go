package pathmon

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrieLongestPrefixWins(t *testing.T) {
	tr := NewTrie(DefaultCapacity)
	require.NoError(t, tr.Insert([]byte("/var/")))
	require.NoError(t, tr.Insert([]byte("/var/lib/app/")))

	assert.True(t, tr.Match([]byte("/var/lib/app/new")))
	assert.True(t, tr.Match([]byte("/var/log/syslog")))
	assert.False(t, tr.Match([]byte("/etc/hosts")))
}

func TestTrieClampsToLPMSizeMax(t *testing.T) {
	tr := NewTrie(DefaultCapacity)
	long := make([]byte, 8192)
	for i := range long {
		long[i] = 'a'
	}
	long[0] = '/'
	require.NoError(t, tr.Insert(long))
	assert.Equal(t, 1, tr.Len())
}

func TestTrieCapacityEnforced(t *testing.T) {
	tr := NewTrie(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, tr.Insert([]byte(fmt.Sprintf("/p%d/", i))))
	}
	err := tr.Insert([]byte("/overflow/"))
	require.Error(t, err)
}

func TestTrieEmptyNeverMatches(t *testing.T) {
	tr := NewTrie(DefaultCapacity)
	assert.False(t, tr.Match([]byte("/anything")))
}

package pathmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackrox/fact-agent/internal/factevent"
)

func TestConfigureEmptyDisablesPrefixFiltering(t *testing.T) {
	m := NewMonitor(DefaultCapacity)
	require.NoError(t, m.Configure(nil))
	assert.False(t, m.FilterByPrefix())

	inode := factevent.InodeKey{Inode: 1, Dev: 1}
	d := m.Evaluate([]byte("/etc/hosts"), inode, false, factevent.InodeKey{})
	assert.Equal(t, DecisionIgnored, d)
}

func TestConfigureNonEmptyEnablesFiltering(t *testing.T) {
	m := NewMonitor(DefaultCapacity)
	require.NoError(t, m.Configure([][]byte{[]byte("/etc/")}))
	assert.True(t, m.FilterByPrefix())

	d := m.Evaluate([]byte("/etc/hosts"), factevent.InodeKey{Inode: 5, Dev: 1}, false, factevent.InodeKey{})
	assert.Equal(t, DecisionMonitoredByPrefix, d)
}

// TestInodeWinsOverPrefix covers the tie-break rule: once an inode is
// promoted, later prefix reconfiguration (or the absence of a prefix
// match) cannot demote it.
func TestInodeWinsOverPrefix(t *testing.T) {
	m := NewMonitor(DefaultCapacity)
	require.NoError(t, m.Configure(nil)) // prefix filtering disabled

	inode := factevent.InodeKey{Inode: 7, Dev: 1}
	m.InodeSet().Insert(inode)

	d := m.Evaluate([]byte("/anywhere/at/all"), inode, false, factevent.InodeKey{})
	assert.Equal(t, DecisionMonitoredByInode, d)
}

// TestPromotionOnCreate verifies a CREATE whose parent is monitored
// promotes the new inode, and it stays monitored afterward.
func TestPromotionOnCreate(t *testing.T) {
	m := NewMonitor(DefaultCapacity)
	require.NoError(t, m.Configure(nil))

	parent := factevent.InodeKey{Inode: 1, Dev: 1}
	m.InodeSet().Insert(parent)

	child := factevent.InodeKey{Inode: 2, Dev: 1}
	d := m.Evaluate([]byte("/watched/dir/new"), child, true, parent)
	assert.Equal(t, DecisionParentMonitored, d)
	assert.True(t, m.InodeSet().Contains(child))

	// A subsequent, unrelated lookup for the same inode now resolves via
	// the inode set directly, without needing isCreate again.
	d2 := m.Evaluate([]byte("/watched/dir/new"), child, false, factevent.InodeKey{})
	assert.Equal(t, DecisionMonitoredByInode, d2)
}

// TestCreateUnderPrefixPromotesInode verifies a CREATE matching an
// installed prefix lands the new inode in the monitored set, so the
// file stays watched even if it is later renamed out from under the
// prefix.
func TestCreateUnderPrefixPromotesInode(t *testing.T) {
	m := NewMonitor(DefaultCapacity)
	require.NoError(t, m.Configure([][]byte{[]byte("/var/lib/app/")}))

	child := factevent.InodeKey{Inode: 3, Dev: 1}
	d := m.Evaluate([]byte("/var/lib/app/new"), child, true, factevent.InodeKey{})
	assert.Equal(t, DecisionMonitoredByPrefix, d)
	assert.True(t, m.InodeSet().Contains(child))

	// A plain open (not a create) under the prefix does not promote.
	other := factevent.InodeKey{Inode: 4, Dev: 1}
	d = m.Evaluate([]byte("/var/lib/app/existing"), other, false, factevent.InodeKey{})
	assert.Equal(t, DecisionMonitoredByPrefix, d)
	assert.False(t, m.InodeSet().Contains(other))
}

func TestCreateWithUnmonitoredParentIsIgnored(t *testing.T) {
	m := NewMonitor(DefaultCapacity)
	require.NoError(t, m.Configure(nil))

	parent := factevent.InodeKey{Inode: 1, Dev: 1}
	child := factevent.InodeKey{Inode: 2, Dev: 1}

	d := m.Evaluate([]byte("/unwatched/new"), child, true, parent)
	assert.Equal(t, DecisionIgnored, d)
	assert.False(t, m.InodeSet().Contains(child))
}

// TestDemotionOnUnlink verifies an UNLINK removes its exact inode from
// the monitored set and that unlinking an unmonitored inode is a no-op.
func TestDemotionOnUnlink(t *testing.T) {
	m := NewMonitor(DefaultCapacity)
	inode := factevent.InodeKey{Inode: 42, Dev: 1}
	m.InodeSet().Insert(inode)

	wasMonitored := m.Unlink(inode)
	assert.True(t, wasMonitored)
	assert.False(t, m.InodeSet().Contains(inode))

	// Unlinking an inode that was never monitored is a harmless no-op.
	wasMonitored = m.Unlink(factevent.InodeKey{Inode: 999, Dev: 1})
	assert.False(t, wasMonitored)
}

// TestUnlinkThenRecreateIsNotDisambiguated verifies that a name reused
// immediately after unlink is just a fresh CREATE evaluated on its own
// merits, since the monitored set is keyed purely by inode.
func TestUnlinkThenRecreateIsNotDisambiguated(t *testing.T) {
	m := NewMonitor(DefaultCapacity)
	require.NoError(t, m.Configure([][]byte{[]byte("/tmp/watch/")}))

	oldInode := factevent.InodeKey{Inode: 10, Dev: 1}
	m.InodeSet().Insert(oldInode)
	m.Unlink(oldInode)

	newInode := factevent.InodeKey{Inode: 11, Dev: 1} // kernel reused the name, new inode
	d := m.Evaluate([]byte("/tmp/watch/f"), newInode, true, factevent.InodeKey{})
	assert.Equal(t, DecisionMonitoredByPrefix, d)
}

package pathmon

import (
	"sync/atomic"

	"github.com/stackrox/fact-agent/internal/factevent"
)

// Decision is the outcome of evaluating one filesystem operation against
// the monitored set and the prefix trie.
type Decision int

// Decision values, in priority order: the inode set always wins over
// the trie, and a CREATE under a monitored parent promotes before
// falling through to ignored.
const (
	DecisionIgnored Decision = iota
	DecisionMonitoredByInode
	DecisionMonitoredByPrefix
	DecisionParentMonitored
)

func (d Decision) Monitored() bool {
	return d != DecisionIgnored
}

// Monitor is the two-tier predicate: inode set plus prefix trie, with the
// single "filter_by_prefix" flag gating whether the trie is consulted at
// all. A disabled trie is treated as matching nothing.
type Monitor struct {
	trie           *Trie
	inodes         *InodeSet
	filterByPrefix atomic.Bool
}

// NewMonitor returns a Monitor with an empty trie of the given capacity
// and an empty monitored-inode set.
func NewMonitor(trieCapacity int) *Monitor {
	return &Monitor{
		trie:   NewTrie(trieCapacity),
		inodes: NewInodeSet(),
	}
}

// Configure installs the operator-supplied path prefixes. An empty list
// disables prefix filtering entirely, leaving the inode set as the sole
// predicate; otherwise every prefix is inserted and filtering is
// enabled.
func (m *Monitor) Configure(prefixes [][]byte) error {
	if len(prefixes) == 0 {
		m.filterByPrefix.Store(false)
		return nil
	}
	for _, p := range prefixes {
		if err := m.trie.Insert(p); err != nil {
			return err
		}
	}
	m.filterByPrefix.Store(true)
	return nil
}

// FilterByPrefix reports whether prefix filtering is currently enabled.
func (m *Monitor) FilterByPrefix() bool {
	return m.filterByPrefix.Load()
}

// InodeSet exposes the underlying monitored-inode set, e.g. for seeding
// it from a restart or for metrics reporting.
func (m *Monitor) InodeSet() *InodeSet { return m.inodes }

// Trie exposes the underlying prefix trie.
func (m *Monitor) Trie() *Trie { return m.trie }

// Evaluate decides whether one filesystem operation is monitored:
//
//  1. inode already monitored -> DecisionMonitoredByInode
//  2. prefix filtering enabled and path matches -> DecisionMonitoredByPrefix
//     (a CREATE additionally promotes the new inode into the set)
//  3. this is a CREATE and the parent inode is monitored -> promote the
//     new inode and return DecisionParentMonitored
//  4. otherwise -> DecisionIgnored
//
// Once an inode is promoted via (2) or (3) it stays monitored regardless
// of later prefix changes — the inode set always wins over the trie.
func (m *Monitor) Evaluate(path []byte, inode factevent.InodeKey, isCreate bool, parent factevent.InodeKey) Decision {
	if m.inodes.Contains(inode) {
		return DecisionMonitoredByInode
	}
	if m.filterByPrefix.Load() && m.trie.Match(path) {
		if isCreate && !inode.IsZero() {
			m.inodes.Insert(inode)
		}
		return DecisionMonitoredByPrefix
	}
	if isCreate && !parent.IsZero() && m.inodes.Contains(parent) {
		m.inodes.Insert(inode)
		return DecisionParentMonitored
	}
	return DecisionIgnored
}

// Unlink demotes inode out of the monitored set. Only an unlink against
// the exact key removes an entry; nothing else demotes. It reports
// whether the inode had been monitored immediately before the call.
func (m *Monitor) Unlink(inode factevent.InodeKey) (wasMonitored bool) {
	wasMonitored = m.inodes.Contains(inode)
	m.inodes.Remove(inode)
	return wasMonitored
}

// MatchesAnyPrefix is a convenience used by callers that already hold a
// path as a string rather than a byte slice (e.g. tests).
func (m *Monitor) MatchesAnyPrefix(path string) bool {
	return m.filterByPrefix.Load() && m.trie.Match([]byte(path))
}

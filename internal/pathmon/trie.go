// Package pathmon is the userspace mirror of the path-monitoring decision
// engine: a longest-prefix-match trie over canonical paths plus an
// exact-match set of tracked inode identities. The kernel hooks enforce
// the real decision in-place at event-emission time; this package exists
// to (a) translate operator path prefixes into the same LPM key encoding
// the kernel trie map uses, and (b) give the promotion/demotion rules a
// unit-testable surface that does not require a running kernel.
package pathmon

import (
	"fmt"
	"sync"

	"github.com/stackrox/fact-agent/internal/factevent"
)

// DefaultCapacity matches the kernel trie map's max_entries.
const DefaultCapacity = 256

type trieEntry struct {
	bitLen int
	prefix []byte
}

// Trie is a longest-prefix-match structure keyed by (bit-length, prefix
// bytes), mirroring the BPF_MAP_TYPE_LPM_TRIE key layout: bit_length is
// always 8*len(prefix) since every inserted key is a whole number of
// bytes.
type Trie struct {
	mu       sync.RWMutex
	entries  []trieEntry
	capacity int
}

// NewTrie returns an empty trie with room for capacity entries. A
// non-positive capacity gets DefaultCapacity, matching the kernel trie
// map's sizing.
func NewTrie(capacity int) *Trie {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Trie{capacity: capacity}
}

// Insert adds prefix to the trie, clamping it to LPMSizeMax bytes first.
// It returns an error if the trie is already at capacity.
func (t *Trie) Insert(prefix []byte) error {
	if len(prefix) > factevent.LPMSizeMax {
		prefix = prefix[:factevent.LPMSizeMax]
	}
	cp := make([]byte, len(prefix))
	copy(cp, prefix)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.capacity {
		return fmt.Errorf("pathmon: trie at capacity (%d entries)", t.capacity)
	}

	entry := trieEntry{bitLen: 8 * len(cp), prefix: cp}
	// Keep entries sorted longest-prefix-first so Match can return on the
	// first hit.
	idx := 0
	for ; idx < len(t.entries); idx++ {
		if t.entries[idx].bitLen < entry.bitLen {
			break
		}
	}
	t.entries = append(t.entries, trieEntry{})
	copy(t.entries[idx+1:], t.entries[idx:])
	t.entries[idx] = entry
	return nil
}

// Match reports whether path has an installed prefix in the trie (longest
// match semantics, though for a pure membership test only the existence
// of any match matters).
func (t *Trie) Match(path []byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if len(path) < len(e.prefix) {
			continue
		}
		if hasPrefix(path, e.prefix) {
			return true
		}
	}
	return false
}

// Len returns the number of installed prefixes.
func (t *Trie) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func hasPrefix(path, prefix []byte) bool {
	for i, b := range prefix {
		if path[i] != b {
			return false
		}
	}
	return true
}

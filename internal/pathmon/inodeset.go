package pathmon

import (
	"sync"

	"github.com/stackrox/fact-agent/internal/factevent"
)

// InodeSet is the monitored-inode set: a mapping from inode key to a
// zero-sized marker, tolerating concurrent readers from every hook and
// concurrent writers from the create/unlink hooks.
type InodeSet struct {
	mu sync.RWMutex
	m  map[factevent.InodeKey]struct{}
}

// NewInodeSet returns an empty monitored-inode set.
func NewInodeSet() *InodeSet {
	return &InodeSet{m: make(map[factevent.InodeKey]struct{})}
}

// Contains reports whether k is currently monitored.
func (s *InodeSet) Contains(k factevent.InodeKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[k]
	return ok
}

// Insert promotes k into the monitored set.
func (s *InodeSet) Insert(k factevent.InodeKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = struct{}{}
}

// Remove demotes k out of the monitored set. It is a no-op if k was not
// present.
func (s *InodeSet) Remove(k factevent.InodeKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, k)
}

// Len returns the number of monitored inodes.
func (s *InodeSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Package factevent defines the shared data model and wire codec for
// file-activity events: the shape every kernel hook fills in and every
// pump decode produces, per the project's data model and external wire
// format.
package factevent

// Size limits shared by the kernel hooks and the userspace decoder. These
// mirror PATH_MAX and friends from <linux/limits.h>; kept as named
// constants here because both internal/kernelsrc's documentation and this
// package's wire codec reference them.
const (
	// PathMax bounds any absolute path the pipeline will carry: filenames,
	// executable paths, and the best-effort memory-cgroup path.
	PathMax = 4096

	// LPMSizeMax bounds a single path-prefix trie key. The trie key is a
	// full canonical path, so this equals PathMax.
	LPMSizeMax = PathMax

	// CommLen is the fixed width of task_struct->comm.
	CommLen = 16

	// MaxArgsLen bounds the captured argv blob.
	MaxArgsLen = 4096

	// LineageMax bounds the number of ancestor processes recorded.
	LineageMax = 2
)

// EventType tags the kind of observation a frame carries.
type EventType int32

// Event type tags, matching the wire format's `type` field exactly.
const (
	TypeInit   EventType = -1
	TypeOpen   EventType = 0
	TypeCreate EventType = 1
	TypeUnlink EventType = 2
	TypeChmod  EventType = 3
	TypeChown  EventType = 4
)

func (t EventType) String() string {
	switch t {
	case TypeInit:
		return "init"
	case TypeOpen:
		return "open"
	case TypeCreate:
		return "create"
	case TypeUnlink:
		return "unlink"
	case TypeChmod:
		return "chmod"
	case TypeChown:
		return "chown"
	default:
		return "unknown"
	}
}

// HookName identifies one of the four security hooks for metrics purposes.
type HookName string

// The four security hooks the agent attaches.
const (
	HookFileOpen   HookName = "file_open"
	HookPathUnlink HookName = "path_unlink"
	HookPathChmod  HookName = "path_chmod"
	HookPathChown  HookName = "path_chown"
)

// Hooks lists every hook in a stable order, used wherever metrics or
// attachment results are enumerated.
var Hooks = []HookName{HookFileOpen, HookPathUnlink, HookPathChmod, HookPathChown}

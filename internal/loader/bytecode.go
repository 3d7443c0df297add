// Package loader finds, loads, and attaches the CO-RE BPF object built
// from internal/kernelsrc/bpf: feature probing, CO-RE relocation,
// runtime-constant rewriting, map population, and the attach/detach
// lifecycle.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
)

// ObjectFileName is the compiled object the out-of-band clang build
// produces from internal/kernelsrc/bpf.
const ObjectFileName = "fact-agent.bpf.o"

// GetReader opens the compiled BPF object from dir/ObjectFileName. dir
// is normally the directory the operator installed alongside the agent
// binary (see Config.BPFDir); co-locating object and binary avoids
// depending on a system-wide BPF object search path. The caller owns
// the returned file and must close it once the collection spec has
// been parsed from it.
func GetReader(dir string) (*os.File, error) {
	p := filepath.Join(dir, ObjectFileName)
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("loader: open bpf object %s: %w", p, err)
	}
	return f, nil
}

package loader

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/btf"
	"github.com/cilium/ebpf/features"
)

// HookRequirement describes whether a missing capability for a given
// hook is fatal to startup or merely disables that one hook.
type HookRequirement int

const (
	// HookMandatory means the agent refuses to start if this hook
	// cannot be attached: file_open and path_unlink, since a partial
	// view of opens or removals is worse than no agent at all.
	HookMandatory HookRequirement = iota
	// HookRecoverable means the agent logs and continues without this
	// hook: path_chmod and path_chown, whose absence narrows coverage
	// but does not compromise the file-activity picture entirely.
	HookRecoverable
)

// HookSpec pairs a hook name with its startup requirement and the LSM
// program that binds it.
type HookSpec struct {
	Name        string
	Program     string // BPF function name in the compiled object
	Requirement HookRequirement
	// NativeDPath records whether the kernel's bpf_d_path helper is
	// callable from this attach point at all. The helper's allowlist
	// covers the file-based security hooks but not the path-based
	// ones, where resolution always falls back to the manual dentry
	// walker regardless of what the kernel otherwise supports.
	NativeDPath bool
}

// Hooks is the fixed, ordered set of LSM hooks this agent attaches. The
// order matches the hook indices the kernel programs use for their
// metrics array.
var Hooks = []HookSpec{
	{Name: "file_open", Program: "on_file_open", Requirement: HookMandatory, NativeDPath: true},
	{Name: "path_unlink", Program: "on_path_unlink", Requirement: HookMandatory, NativeDPath: false},
	{Name: "path_chmod", Program: "on_path_chmod", Requirement: HookRecoverable, NativeDPath: false},
	{Name: "path_chown", Program: "on_path_chown", Requirement: HookRecoverable, NativeDPath: false},
}

// FeatureReport is the result of probing the host kernel before the
// collection is loaded: which program and map types it accepts, whether
// the bpf_d_path helper can be called from an LSM program, and whether
// a kernel BTF blob is available for CO-RE relocation at all.
type FeatureReport struct {
	HasKernelBTF   bool
	LSMProgramType bool
	RingBuffer     bool
	LPMTrie        bool
	DPathHelper    bool
}

// DPathFlags translates the probed helper support into the per-hook
// flag array the kernel programs read. A hook only gets the native
// resolver if the helper both exists on this kernel and is callable
// from that hook's attach point.
func (r FeatureReport) DPathFlags() [4]uint8 {
	var flags [4]uint8
	if !r.DPathHelper {
		return flags
	}
	for i, hook := range Hooks {
		if hook.NativeDPath {
			flags[i] = 1
		}
	}
	return flags
}

// Probe runs the cheap, read-only checks that decide whether attaching
// is worth attempting at all, before the expensive verifier pass. Each
// check loads (or asks the kernel about) one minimal capability in
// isolation, so a failure names the exact missing feature.
func Probe() (FeatureReport, error) {
	var report FeatureReport

	if _, err := btf.LoadKernelSpec(); err == nil {
		report.HasKernelBTF = true
	}

	report.LSMProgramType = features.HaveProgramType(ebpf.LSM) == nil
	report.RingBuffer = features.HaveMapType(ebpf.RingBuf) == nil
	report.LPMTrie = features.HaveMapType(ebpf.LPMTrie) == nil
	report.DPathHelper = features.HaveProgramHelper(ebpf.LSM, asm.FnDPath) == nil

	if !report.HasKernelBTF {
		return report, fmt.Errorf("loader: no kernel BTF available, CO-RE relocation impossible")
	}
	return report, nil
}

// Package kernelsrc holds the C source for the in-kernel observation core
// (the four LSM hook programs and their shared BPF maps). Nothing in this
// package is compiled by `go build`: the .bpf.c files under bpf/ are
// compiled out-of-band by clang against the running kernel's BTF,
// producing the object internal/loader reads via loader.GetReader at
// startup.
//
// The files exist here, checked into the Go module, so the contract
// between the Go loader and the kernel program it attaches is documented
// in one place: map names, map value layouts, and the runtime-constant
// flags the loader relocates before the programs run.
package kernelsrc

//go:build unix

package process

import "golang.org/x/sys/unix"

// nativeStackRegion is the "separately allocated" native-stack region
// spec.md §3 gives every non-main process frame. This port does not
// execute on it (Go manages its own goroutine stacks); it exists so that
// continuation capture (package cont) has a real, OS-backed byte range to
// copy "direction-aware" the way spec.md §4.6 describes, and so growth
// failures are reported the same way heap growth failures are (a real
// mmap can actually fail under memory pressure, unlike a Go slice grow).
type nativeStackRegion struct {
	buf []byte // mmap'd, grows downward conceptually: buf[len(buf)-1] is the "top"
}

func newNativeStackRegion(size int) (*nativeStackRegion, error) {
	if size < unix.Getpagesize() {
		size = unix.Getpagesize()
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return &nativeStackRegion{buf: buf}, nil
}

func (r *nativeStackRegion) Bytes() []byte { return r.buf }

func (r *nativeStackRegion) Close() error {
	if r.buf == nil {
		return nil
	}
	err := unix.Munmap(r.buf)
	r.buf = nil
	return err
}

// Snapshot copies the live portion of the region — from sp to the top,
// matching spec.md §4.6's "copied from the saved SP up to the stack top"
// for a downward-growing stack, generalized here to "the whole region"
// since nothing actually executes on it in this port.
func (r *nativeStackRegion) Snapshot() []byte {
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}

// Restore copies a previously captured snapshot back into the live
// region, mirroring spec.md §4.6's invoke() memcpy step.
func (r *nativeStackRegion) Restore(snapshot []byte) {
	copy(r.buf, snapshot)
}

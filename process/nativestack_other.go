//go:build !unix

package process

// nativeStackRegion falls back to a plain Go slice on non-unix targets
// (golang.org/x/sys/unix's mmap is unix-only); see nativestack_unix.go
// for the primary implementation and its rationale.
type nativeStackRegion struct {
	buf []byte
}

func newNativeStackRegion(size int) (*nativeStackRegion, error) {
	return &nativeStackRegion{buf: make([]byte, size)}, nil
}

func (r *nativeStackRegion) Bytes() []byte { return r.buf }

func (r *nativeStackRegion) Close() error { return nil }

func (r *nativeStackRegion) Snapshot() []byte {
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}

func (r *nativeStackRegion) Restore(snapshot []byte) { copy(r.buf, snapshot) }

package sunvox

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// shmDir picks the backing directory for shared audio buffers. /dev/shm
// gives page-cache-only files on Linux; elsewhere a plain temp file still
// works, just through the filesystem.
func shmDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}

	return os.TempDir()
}

// shmRegion is one file-backed memory mapping shared between supervisor and
// worker. The supervisor creates regions and owns the backing files; the
// worker opens them by path and only maps.
type shmRegion struct {
	f     *os.File
	data  []byte
	owner bool

	mu     sync.Mutex
	closed bool
}

func mapRegion(f *os.File, size int, owner bool) (*shmRegion, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}

	return &shmRegion{f: f, data: data, owner: owner}, nil
}

// createShmRegion allocates a new region of the given byte size.
func createShmRegion(size int) (*shmRegion, error) {
	f, err := os.CreateTemp(shmDir(), "sunvox-buf-*")
	if err != nil {
		return nil, fmt.Errorf("create shm file: %w", err)
	}

	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(f.Name())

		return nil, fmt.Errorf("size shm file: %w", err)
	}

	r, err := mapRegion(f, size, true)
	if err != nil {
		os.Remove(f.Name())

		return nil, err
	}

	return r, nil
}

// openShmRegion maps an existing region created by the peer.
func openShmRegion(path string, size int) (*shmRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open shm file: %w", err)
	}

	return mapRegion(f, size, false)
}

func (r *shmRegion) Path() string { return r.f.Name() }

// Close unmaps and closes the region once; the owning side also removes the
// backing file. Safe to call from either side at any point of teardown.
func (r *shmRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	err := unix.Munmap(r.data)
	r.data = nil

	name := r.f.Name()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	if r.owner {
		if rerr := os.Remove(name); err == nil {
			err = rerr
		}
	}

	return err
}

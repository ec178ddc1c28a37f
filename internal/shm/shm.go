//go:build linux

// Package shm allocates anonymous, file-descriptor-backed memory that a
// Wayland compositor can map as a wl_shm pool.
package shm

import (
	"errors"
	"fmt"
	"os"

	"github.com/bryanchriswhite/sdock/internal/logger"
	"golang.org/x/sys/unix"
)

// Region is a mapped shared memory region. The caller owns it until Close.
type Region struct {
	fd   int
	data []byte
}

// Allocate returns a new region of exactly size bytes, zero filled.
func Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid shm size %d", size)
	}

	fd, err := createFd()
	if err != nil {
		return nil, err
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to truncate shm file: %w", err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to mmap shm file: %w", err)
	}

	return &Region{fd: fd, data: data}, nil
}

// createFd prefers a sealed memfd and falls back to an unlinked file in
// $XDG_RUNTIME_DIR when memfd_create is unavailable.
func createFd() (int, error) {
	for {
		fd, err := unix.MemfdCreate("sdock", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
		if err == nil {
			// Best effort: the compositor may rely on the size never shrinking.
			if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_SEAL); err != nil {
				logger.WithComponent("shm").Debug().Err(err).Msg("Failed to seal memfd")
			}
			return fd, nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.ENOSYS) {
			break
		}
		return -1, fmt.Errorf("failed to create memfd: %w", err)
	}

	logger.WithComponent("shm").Debug().Msg("memfd_create unavailable, falling back to tmpfile")
	return tmpFd()
}

func tmpFd() (int, error) {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}

	f, err := os.CreateTemp(dir, "sdock-shm-*")
	if err != nil {
		return -1, fmt.Errorf("failed to create shm file: %w", err)
	}
	defer f.Close()

	if err := os.Remove(f.Name()); err != nil {
		return -1, fmt.Errorf("failed to unlink shm file: %w", err)
	}

	// Dup so the descriptor outlives the *os.File
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return -1, fmt.Errorf("failed to dup shm file: %w", err)
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

// Fd returns the descriptor to hand to wl_shm.create_pool
func (r *Region) Fd() int {
	return r.fd
}

// Bytes returns the mapped memory
func (r *Region) Bytes() []byte {
	return r.data
}

// Size returns the region size in bytes
func (r *Region) Size() int {
	return len(r.data)
}

// Close unmaps the memory and closes the descriptor. The compositor keeps
// its own reference to the pool, so this is safe once the pool exists.
func (r *Region) Close() error {
	var errs []error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		r.data = nil
	}
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		r.fd = -1
	}
	return errors.Join(errs...)
}

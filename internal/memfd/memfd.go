// Package memfd wraps memfd_create and POSIX file seals for transferring
// decoded pixel buffers and metadata blobs between the host and a
// sandboxed decoder without copying through the IPC socket itself.
package memfd

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/glycin-go/internal/errs"
)

// sealMask is the seal set a fully-written buffer must carry before it is
// handed to the other side of the IPC boundary: the receiver can mmap it
// read-only and trust that neither side can grow, shrink, or write to it
// afterward.
const sealMask = unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_WRITE

// Create allocates an anonymous, sealable memfd of the given name (purely
// cosmetic, shows up in /proc/<pid>/fd) and size, ready to be written via
// the returned *os.File before sealing.
func Create(name string, size int64) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "memfd_create", err)
	}
	f := os.NewFile(uintptr(fd), name)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, errs.Wrap(errs.IO, "truncate memfd", err)
	}
	return f, nil
}

// Seal applies the full SHRINK|GROW|WRITE seal set, retrying up to
// maxRetries times since a concurrent seal-query race (another mapping
// briefly extending the file) can cause a transient EBUSY.
func Seal(f *os.File, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, _, errno := unix.Syscall(unix.SYS_FCNTL, f.Fd(), unix.F_ADD_SEALS, uintptr(sealMask))
		if errno == 0 {
			return nil
		}
		lastErr = errno
	}
	return errs.Wrap(errs.Protocol, fmt.Sprintf("seal memfd after %d attempts", maxRetries), lastErr)
}

// VerifySeals checks that fd carries the full expected seal mask, failing
// closed: any missing seal bit is treated as an unsealed memfd, since a
// missing WRITE seal would let the sender mutate a buffer the receiver
// has already mmap'd read-only.
func VerifySeals(f *os.File) error {
	got, _, errno := unix.Syscall(unix.SYS_FCNTL, f.Fd(), unix.F_GET_SEALS, 0)
	if errno != 0 {
		return errs.Wrap(errs.Protocol, "query memfd seals", errno)
	}
	if int(got)&sealMask != sealMask {
		return errs.New(errs.Protocol, fmt.Sprintf("memfd missing required seals: have=%#x want=%#x", got, sealMask)).WithSub(errs.SubUnsealedMemfd)
	}
	return nil
}

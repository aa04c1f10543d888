//go:build linux

package apply

import (
	"os"

	"golang.org/x/sys/unix"
)

// ficloneIoctl mirrors Linux's FICLONE ioctl number (include/uapi/linux/fs.h).
const ficloneIoctl = 0x40049409

// reflinkFile attempts a copy-on-write clone via the FICLONE ioctl,
// available on btrfs/xfs/overlayfs-with-reflink-support. Any failure
// (ENOTSUP, cross-device, non-reflink filesystem) is returned unwrapped so
// the caller falls back to hard link/copy without distinguishing why.
func reflinkFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	return unix.IoctlFileClone(int(out.Fd()), int(in.Fd()))
}

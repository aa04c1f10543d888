//go:build !linux

package apply

import "github.com/oro-build/oro/internal/errs"

// reflinkFile has no portable implementation outside Linux's FICLONE
// ioctl; callers always fall back to hard link/copy on these platforms.
func reflinkFile(src, dst string) error {
	return errs.ErrIO
}

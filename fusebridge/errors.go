package fusebridge

import (
	"syscall"

	"github.com/cloudkit/cloudkit"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// statusFromError classifies a provider error into the nearest POSIX errno
// FUSE expects back over the wire.
func statusFromError(err *cloudkit.Error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	switch err.Code {
	case cloudkit.CodeNotFound, cloudkit.CodeNodeNotFound:
		return fuse.ENOENT
	case cloudkit.CodeExists:
		return fuse.Status(syscall.EEXIST)
	case cloudkit.CodeUnauthorized, cloudkit.CodeInvalidCredentials, cloudkit.CodeInvalidAuthorizationCode, cloudkit.CodeForbidden:
		return fuse.EACCES
	case cloudkit.CodeInvalidArgument, cloudkit.CodeInvalidRange:
		return fuse.EINVAL
	case cloudkit.CodeAborted:
		return fuse.Status(syscall.EINTR)
	default:
		return fuse.EIO
	}
}

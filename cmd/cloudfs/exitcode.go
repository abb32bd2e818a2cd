package main

import "github.com/cloudkit/cloudkit"

// Exit codes per the CLI/library surface: 0 success, 1 internal, 2 usage,
// 3 auth, 4 not found, 5 network.
const (
	exitOK       = 0
	exitInternal = 1
	exitUsage    = 2
	exitAuth     = 3
	exitNotFound = 4
	exitNetwork  = 5
)

// exitCodeForErr classifies an error surfaced from a provider/vfs
// operation into one of the CLI's exit codes. Unrecognized errors
// (including anything that isn't a *cloudkit.Error, e.g. a local os.Open
// failure) fall back to exitInternal.
func exitCodeForErr(err error) int {
	cerr, ok := err.(*cloudkit.Error)
	if !ok {
		return exitInternal
	}
	switch cerr.Code {
	case cloudkit.CodeNotFound, cloudkit.CodeNodeNotFound:
		return exitNotFound
	case cloudkit.CodeUnauthorized, cloudkit.CodeInvalidCredentials, cloudkit.CodeInvalidAuthorizationCode, cloudkit.CodeForbidden:
		return exitAuth
	case cloudkit.CodeBandwidth:
		return exitNetwork
	}
	switch int(cerr.Code) {
	case 401, 403:
		return exitAuth
	case 404:
		return exitNotFound
	case 429:
		return exitNetwork
	}
	if int(cerr.Code) >= 500 && int(cerr.Code) < 600 {
		return exitNetwork
	}
	return exitInternal
}

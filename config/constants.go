package config

import "github.com/cloudkit/cloudkit/internal/util"

// Bytes per MB
const MB = 1024 * 1024

// Verbosity levels accepted from the CLI's -verbose flag (1-5); TraceVerbose
// is the noisiest.
const (
	ErrorVerbose = 1
	WarnVerbose  = 2
	InfoVerbose  = 3
	DebugVerbose = 4
	TraceVerbose = 5
)

// Default configuration constants. See [Config] for field descriptions.
const (
	// DefaultMaxFH uses 31 bits (2^31 - 1) to stay compatible with libfuse
	// and avoid signed integer overflow while leaving over two billion
	// unique file handles.
	DefaultMaxFH = (1 << 31) - 1

	// DefaultChunkSize is the size of each read-cache chunk in bytes.
	DefaultChunkSize = 1 * MB

	// DefaultCacheMaxSize is the maximum total read-cache size in bytes.
	DefaultCacheMaxSize = 200 * MB

	// DefaultMaxPrefetchAhead is the maximum bytes to prefetch ahead of the
	// current read position.
	DefaultMaxPrefetchAhead = 100 * MB

	// DefaultPrefetchBatchSize is the number of chunks fetched concurrently
	// per prefetch batch.
	DefaultPrefetchBatchSize = 3

	// DefaultMaxWrite is the maximum write size per FUSE request.
	DefaultMaxWrite = 1 * MB

	// DefaultAttrTimeout is the attribute cache timeout in seconds.
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds.
	DefaultEntryTimeout = 1.0

	// DefaultDirectIO determines whether to bypass the page cache for
	// remote-backed files.
	DefaultDirectIO = true

	// DefaultLogLvl is used when no verbosity override is given.
	DefaultLogLvl = util.InfoLevel

	// DefaultFsName and DefaultName label the FUSE mount when the caller
	// doesn't override them.
	DefaultFsName = "cloudkit"
	DefaultName   = "cloudkit"

	// DefaultHTTPPort of 0 asks the OS for an ephemeral port; the daemon
	// records the bound port for RedirectURI construction (§7).
	DefaultHTTPPort = 0

	// DefaultMaxRetry is the request engine's retry ceiling before an
	// operation surfaces as a terminal error (§4.4).
	DefaultMaxRetry = 4

	// DefaultMaxReauthAttempts bounds how many times a single request may
	// trigger a reauth-and-retry cycle on 401 (§4.3).
	DefaultMaxReauthAttempts = 1
)

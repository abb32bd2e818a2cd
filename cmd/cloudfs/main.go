// Command cloudfs is the thin consuming CLI over the cloudkit library
// (§6): list/download/upload/mkdir/mv/rm operate one-shot against a
// provider; mount presents it as a local FUSE filesystem until a
// termination signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cloudkit/cloudkit/config"
	"github.com/cloudkit/cloudkit/internal/transport"
	"github.com/cloudkit/cloudkit/internal/util"
	"github.com/cloudkit/cloudkit/tokenstore"
	"github.com/cloudkit/cloudkit/vfs"
)

// commonOpts is the flag set every subcommand shares: which provider to
// talk to and how chatty to be about it.
type commonOpts struct {
	providerFile string
	stateDir     string
	verbose      int
}

func addCommonFlags(fs *flag.FlagSet) *commonOpts {
	o := &commonOpts{}
	fs.StringVar(&o.providerFile, "provider", "", "Path to provider definition JSON file")
	fs.StringVar(&o.stateDir, "state-dir", "", "Directory holding <provider>.tok/<provider>.hints (default ~/.cloudkit)")
	fs.IntVar(&o.verbose, "verbose", 3, "Log verbosity level between 1 (error) and 5 (trace)")
	return o
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return exitUsage
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "list":
		return runWithBackend(cmd, args, 1, func(ctx context.Context, tree *vfs.Tree, pos []string) error {
			return runList(ctx, tree, pos[0])
		})
	case "download":
		return runWithBackend(cmd, args, 2, func(ctx context.Context, tree *vfs.Tree, pos []string) error {
			return runDownload(ctx, tree, pos[0], pos[1])
		})
	case "upload":
		return runWithBackend(cmd, args, 2, func(ctx context.Context, tree *vfs.Tree, pos []string) error {
			return runUpload(ctx, tree, pos[0], pos[1])
		})
	case "mkdir":
		return runWithBackend(cmd, args, 1, func(ctx context.Context, tree *vfs.Tree, pos []string) error {
			return runMkdir(ctx, tree, pos[0])
		})
	case "mv":
		return runWithBackend(cmd, args, 2, func(ctx context.Context, tree *vfs.Tree, pos []string) error {
			return runMv(ctx, tree, pos[0], pos[1])
		})
	case "rm":
		return runWithBackend(cmd, args, 1, func(ctx context.Context, tree *vfs.Tree, pos []string) error {
			return runRm(ctx, tree, pos[0])
		})
	case "mount":
		return runWithBackend(cmd, args, 1, func(ctx context.Context, tree *vfs.Tree, pos []string) error {
			return runMount(ctx, tree, pos[0])
		})
	case "-h", "-help", "--help", "help":
		usage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "cloudfs: unknown command %q\n", cmd)
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: cloudfs <command> -provider <file.json> [args]

commands:
  list <path>
  download <remote-path> <local-path>
  upload <local-path> <remote-path>
  mkdir <path>
  mv <src> <dst>
  rm <path>
  mount <mountpoint>`)
}

// runWithBackend parses cmd's flags, builds the provider backend and the
// vfs.Tree over it, runs authorization if needed, invokes fn with the
// resolved positional operands, and translates the outcome into an exit
// code (§6's 0..5 scheme).
func runWithBackend(cmd string, args []string, wantPositional int, fn func(ctx context.Context, tree *vfs.Tree, pos []string) error) int {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	opts := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	pos := fs.Args()
	if len(pos) < wantPositional {
		fmt.Fprintf(os.Stderr, "cloudfs %s: expected %d argument(s), got %d\n", cmd, wantPositional, len(pos))
		usage()
		return exitUsage
	}
	if opts.providerFile == "" {
		fmt.Fprintln(os.Stderr, "cloudfs: -provider is required")
		return exitUsage
	}

	logLvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	v := opts.verbose
	if v < 1 {
		v = 1
	}
	if v > 5 {
		v = 5
	}
	logLvl := logLvls[v-1]
	util.InitializeLogger(logLvl)
	logger := util.GetLogger("cloudfs")

	pf, err := loadProviderFile(opts.providerFile)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load provider file")
		return exitUsage
	}

	stateDir := opts.stateDir
	if stateDir == "" {
		dir, err := tokenstore.DefaultDir()
		if err != nil {
			logger.Error().Err(err).Msg("failed to resolve default state directory")
			return exitInternal
		}
		stateDir = dir
	}
	store, err := tokenstore.NewFileStore(stateDir)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open token store")
		return exitInternal
	}

	cfg := config.NewConfig(&config.ConfigOverride{LogLvl: &v})
	httpTransport := transport.New(nil)

	backend, err := buildBackend(pf, cfg, httpTransport, store)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build provider")
		return exitUsage
	}

	ctx := context.Background()
	if err := ensureAuthorized(ctx, backend); err != nil {
		logger.Error().Err(err).Msg("authorization failed")
		return exitAuth
	}

	tree := vfs.NewTree(cfg, backend.provider)
	if err := fn(ctx, tree, pos); err != nil {
		logger.Error().Err(err).Str("command", cmd).Msg("command failed")
		return exitCodeForErr(err)
	}
	return exitOK
}

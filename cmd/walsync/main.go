package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/walsync/walsync/internal/cli"
	"github.com/walsync/walsync/internal/compress"
	"github.com/walsync/walsync/internal/engine"
	"github.com/walsync/walsync/internal/metadata"
	"github.com/walsync/walsync/internal/storage"
	s3store "github.com/walsync/walsync/internal/storage/s3"
	walrusstore "github.com/walsync/walsync/internal/storage/walrus"
)

const (
	exitSuccess = 0
	exitFatal   = 1
)

func main() {
	opts, err := cli.Parse(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "walsync: %v\n", err)
		os.Exit(exitFatal)
	}
	if opts.Help {
		_, _ = fmt.Fprint(os.Stdout, cli.HelpText(filepath.Base(os.Args[0])))
		os.Exit(exitSuccess)
	}

	basectx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(basectx, opts); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "walsync: %v\n", err)
		os.Exit(exitFatal)
	}
	os.Exit(exitSuccess)
}

func run(ctx context.Context, opts cli.Options) error {
	root := opts.Root
	if root == "" {
		root = "."
	}
	meta, err := metadata.Open(root)
	if err != nil {
		return err
	}
	blobs, err := openBlobStore(ctx, opts.Remote)
	if err != nil {
		return err
	}

	logger := slog.New(slog.DiscardHandler)
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	eng := engine.New(meta, blobs,
		engine.WithLogger(logger),
		engine.WithCompression(compression(opts.Compression)),
	)

	switch opts.Mode {
	case cli.ModePush:
		res, err := eng.Push(ctx, opts.Dir)
		if err != nil {
			return err
		}
		if res.Unchanged {
			fmt.Printf("No changes detected. %s is up to date.\n", res.Path)
			return nil
		}
		fmt.Printf("Pushed %s. Blob ID: %s\n", res.Path, res.BlobID)
		return nil
	case cli.ModePull:
		res, err := eng.Pull(ctx, opts.Dir)
		if err != nil {
			return err
		}
		fmt.Printf("Pulled %s from blob %s\n", res.Path, res.BlobID)
		return nil
	case cli.ModeList:
		records, err := eng.List(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No directories tracked.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "PATH\tBLOB ID\tPUSHED AT")
		for _, rec := range records {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.Path, rec.BlobID, rec.PushedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported command %q", opts.Mode)
	}
}

func openBlobStore(ctx context.Context, remote cli.Remote) (storage.BlobStore, error) {
	if remote == "" {
		remote = cli.Remote(strings.TrimSpace(os.Getenv("WALSYNC_REMOTE")))
	}
	switch remote {
	case cli.RemoteWalrus:
		return walrusstore.New(), nil
	case cli.RemoteS3, "":
		return s3store.New(ctx)
	default:
		return nil, fmt.Errorf("unknown remote %q", remote)
	}
}

func compression(v string) compress.Type {
	if v == "" {
		return compress.Gzip
	}
	return compress.FromString(v)
}

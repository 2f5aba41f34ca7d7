package cli

import "fmt"

func HelpText(program string) string {
	if program == "" {
		program = "walsync"
	}
	return fmt.Sprintf(`%s - push/pull directory snapshots to a remote blob store

Usage:
  %s push [flags] [dir]    Push dir (default .) if its content changed
  %s pull [flags] [dir]    Restore dir from its last pushed archive
  %s list [flags]          List tracked directories

Flags:
  -C <dir>, --root <dir>
                    Directory whose .walsync metadata is used (default .)
  -remote <s3|walrus>
                    Blob store backend (default $WALSYNC_REMOTE, then s3)
  -compression <gzip|bzip2|xz|zstd|lz4|none>
                    Archive compression for push (default gzip)
  -v                Verbose logging to stderr
  -h, --help        Show this help message

Backend settings (environment):
  WALSYNC_S3_BUCKET, WALSYNC_S3_PREFIX, WALSYNC_S3_PART_SIZE_MB,
  WALSYNC_S3_CONCURRENCY, WALSYNC_S3_MAX_RETRIES, WALSYNC_S3_USE_PATH_STYLE
  WALSYNC_WALRUS_BIN, WALSYNC_WALRUS_EPOCHS
`, program, program, program, program)
}

// Package s3 stores archive blobs as S3 objects. Each Store call
// uploads to a fresh object key; the adapter never assumes the bucket
// deduplicates content.
package s3

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/walsync/walsync/internal/storage"
)

type Store struct {
	client   *awss3.Client
	tm       *transfermanager.Client
	settings Settings
	now      func() time.Time
}

type Settings struct {
	Bucket      string
	Prefix      string
	PartSizeMB  int64
	Concurrency int
}

// New builds an S3-backed blob store from the default AWS credential
// chain and WALSYNC_S3_* environment settings. WALSYNC_S3_BUCKET is
// required.
func New(ctx context.Context) (*Store, error) {
	settings := Settings{
		Bucket:      strings.TrimSpace(os.Getenv("WALSYNC_S3_BUCKET")),
		Prefix:      strings.Trim(os.Getenv("WALSYNC_S3_PREFIX"), "/"),
		PartSizeMB:  16,
		Concurrency: 4,
	}
	if settings.Bucket == "" {
		return nil, fmt.Errorf("WALSYNC_S3_BUCKET is not set")
	}
	if v, ok := int64FromEnv("WALSYNC_S3_PART_SIZE_MB"); ok && v > 0 {
		settings.PartSizeMB = v
	}
	if v, ok := intFromEnv("WALSYNC_S3_CONCURRENCY"); ok && v > 0 {
		settings.Concurrency = v
	}

	var cfg aws.Config
	var err error
	if retryMax, ok := intFromEnv("WALSYNC_S3_MAX_RETRIES"); ok {
		cfg, err = config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(retryMax))
	} else {
		cfg, err = config.LoadDefaultConfig(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if strings.EqualFold(strings.TrimSpace(os.Getenv("WALSYNC_S3_USE_PATH_STYLE")), "true") {
			o.UsePathStyle = true
		}
	})
	tm := transfermanager.New(client, func(o *transfermanager.Options) {
		o.PartSizeBytes = settings.PartSizeMB * 1024 * 1024
		o.Concurrency = settings.Concurrency
	})
	return &Store{client: client, tm: tm, settings: settings, now: time.Now}, nil
}

func (s *Store) Store(ctx context.Context, blob io.Reader) (string, error) {
	key := s.objectKey()
	_, err := s.tm.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket: aws.String(s.settings.Bucket),
		Key:    aws.String(key),
		Body:   blob,
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload s3://%s/%s: %v", storage.ErrUnavailable, s.settings.Bucket, key, err)
	}
	return key, nil
}

func (s *Store) Retrieve(ctx context.Context, id string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.settings.Bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", storage.ErrNotFound, s.settings.Bucket, id)
		}
		return nil, fmt.Errorf("%w: download s3://%s/%s: %v", storage.ErrUnavailable, s.settings.Bucket, id, err)
	}
	return out.Body, nil
}

// objectKey returns a key unique per Store call so transport-level
// retries of the same upload can never clobber an unrelated blob.
func (s *Store) objectKey() string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	name := fmt.Sprintf("%s-%s.tar.gz", s.now().UTC().Format("20060102T150405Z"), hex.EncodeToString(suffix))
	if s.settings.Prefix == "" {
		return name
	}
	return s.settings.Prefix + "/" + name
}

func intFromEnv(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	x, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return x, true
}

func int64FromEnv(key string) (int64, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	x, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return x, true
}

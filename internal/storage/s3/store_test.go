package s3

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBucket(t *testing.T) {
	t.Setenv("WALSYNC_S3_BUCKET", "")
	_, err := New(context.Background())
	assert.ErrorContains(t, err, "WALSYNC_S3_BUCKET")
}

func TestNewSettingsFromEnv(t *testing.T) {
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("WALSYNC_S3_BUCKET", "snapshots")
	t.Setenv("WALSYNC_S3_PREFIX", "/team/walsync/")
	t.Setenv("WALSYNC_S3_PART_SIZE_MB", "32")
	t.Setenv("WALSYNC_S3_CONCURRENCY", "8")

	s, err := New(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snapshots", s.settings.Bucket)
	assert.Equal(t, "team/walsync", s.settings.Prefix)
	assert.Equal(t, int64(32), s.settings.PartSizeMB)
	assert.Equal(t, 8, s.settings.Concurrency)
}

func TestObjectKeyFormat(t *testing.T) {
	s := &Store{
		settings: Settings{Bucket: "snapshots", Prefix: "team"},
		now: func() time.Time {
			return time.Date(2026, 8, 23, 12, 30, 45, 0, time.UTC)
		},
	}
	key := s.objectKey()
	assert.Regexp(t, regexp.MustCompile(`^team/20260823T123045Z-[0-9a-f]{8}\.tar\.gz$`), key)
}

func TestObjectKeyNoPrefix(t *testing.T) {
	s := &Store{now: time.Now}
	key := s.objectKey()
	assert.Regexp(t, regexp.MustCompile(`^\d{8}T\d{6}Z-[0-9a-f]{8}\.tar\.gz$`), key)
}

func TestObjectKeysUnique(t *testing.T) {
	s := &Store{now: time.Now}
	seen := map[string]bool{}
	for range 32 {
		key := s.objectKey()
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestIntFromEnv(t *testing.T) {
	t.Setenv("WALSYNC_TEST_INT", " 42 ")
	v, ok := intFromEnv("WALSYNC_TEST_INT")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	t.Setenv("WALSYNC_TEST_INT", "nope")
	_, ok = intFromEnv("WALSYNC_TEST_INT")
	assert.False(t, ok)

	t.Setenv("WALSYNC_TEST_INT", "")
	_, ok = intFromEnv("WALSYNC_TEST_INT")
	assert.False(t, ok)
}

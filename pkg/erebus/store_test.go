package erebus

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()
	key := ReportKey("0b7c7c52-1b4e-4c3f-9b1e-5f0f0a2c9d11")

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, key, strings.NewReader(`{"mape":0.1}`)))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, `{"mape":0.1}`, string(data))

	// Overwrite
	require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte(`{"mape":0.2}`))))
	rc, err = store.Get(ctx, key)
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, `{"mape":0.2}`, string(data))

	require.NoError(t, store.Delete(ctx, key))
	assert.ErrorIs(t, store.Delete(ctx, key), ErrNotFound)

	for _, bad := range []string{"", "/etc/passwd", "../outside", "reports/../../x"} {
		assert.ErrorIs(t, store.Put(ctx, bad, strings.NewReader("x")), ErrInvalidKey, bad)
	}
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestS3Store(t *testing.T) {
	endpoint := os.Getenv("PERSEPHONE_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("PERSEPHONE_TEST_S3_ENDPOINT not set")
	}
	store, err := NewS3Store(context.Background(), S3Config{
		Endpoint:  endpoint,
		Bucket:    os.Getenv("PERSEPHONE_TEST_S3_BUCKET"),
		Prefix:    "persephone-test",
		AccessKey: os.Getenv("PERSEPHONE_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("PERSEPHONE_TEST_S3_SECRET_KEY"),
	})
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Endpoint: "http://localhost:9000"})
	assert.Error(t, err)
}

func TestS3Store_ObjectKey(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Config{
		Endpoint:  "http://localhost:9000",
		Bucket:    "reports",
		Prefix:    "team-a",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)

	key, err := store.objectKey(ReportKey("abc"))
	require.NoError(t, err)
	assert.Equal(t, "team-a/reports/abc.json", key)

	_, err = store.objectKey("../abc")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

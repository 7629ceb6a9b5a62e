package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	payload := []byte("content")

	uri, err := store.PutObject(ctx, "ckpt/leads_final.csv", "text/csv", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://ckpt/leads_final.csv", uri)
	payload[0] = 'C'

	rc, err := store.GetObject(ctx, "ckpt/leads_final.csv")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "content", string(got))

	_, err = store.GetObject(ctx, "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBlobStoreListAndFailures(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	for _, p := range []string{"b/2", "a/1", "b/1"} {
		_, err := store.PutObject(ctx, p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	paths, err := store.ListObjects(ctx, "b/")
	require.NoError(t, err)
	assert.Equal(t, []string{"b/1", "b/2"}, paths)

	store.FailPut = func(string) error { return errors.New("disk full") }
	_, err = store.PutObject(ctx, "c", "", bytes.NewReader(nil))
	require.Error(t, err)
	assert.Nil(t, store.Bytes("c"))
}

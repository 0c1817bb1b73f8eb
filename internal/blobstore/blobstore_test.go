package blobstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b-snaas/vllm-gateway/internal/blobstore"
)

func TestStore_PutReadDelete(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	obj, err := store.Put([]byte("hello"), "greeting.txt", "batch")
	require.NoError(t, err)
	require.Equal(t, "file", obj.Object)
	require.Equal(t, int64(5), obj.Bytes)
	require.True(t, store.Exists(obj.ID))

	data, err := store.Read(obj.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(obj.ID))
	require.False(t, store.Exists(obj.ID))
}

func TestStore_PutNamed(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	id := blobstore.NewFileID()
	require.NoError(t, store.PutNamed(id, []byte("content")))
	require.True(t, store.Exists(id))
	require.Equal(t, int64(len("content")), store.Size(id))
}

func TestStore_ExistsFalseForEmptyFile(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	id := blobstore.NewFileID()
	require.NoError(t, store.PutNamed(id, []byte{}))
	require.False(t, store.Exists(id))
}

func TestStore_RejectsPathTraversalIDs(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"../../../../etc/passwd", "../secret", "a/b", "/etc/passwd", ".", ".."} {
		_, err := store.Read(id)
		require.Error(t, err, "id=%q", id)
		require.False(t, store.Exists(id), "id=%q", id)
		require.Equal(t, int64(0), store.Size(id), "id=%q", id)
		require.Error(t, store.Delete(id), "id=%q", id)
		require.Error(t, store.PutNamed(id, []byte("x")), "id=%q", id)
	}
}

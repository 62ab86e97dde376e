package filesvc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elearning/core/file"
)

func TestDiskStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	name := "3f2a1c9e-0b7d-4e1a-9c55-2d7e8f6a1b00.png"
	require.NoError(t, s.Put(ctx, name, []byte("content")))

	got, err := s.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), got)

	require.NoError(t, s.Delete(ctx, name))
	_, err = s.Get(ctx, name)
	assert.Equal(t, file.ErrNotFound, err)

	t.Run("rejects dot files", func(t *testing.T) {
		assert.Equal(t, file.ErrNotFound, s.Put(ctx, ".hidden", []byte("x")))
	})

	t.Run("deleting a missing file is not an error", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, "missing.png"))
	})
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalFileStorage_SaveReadDelete(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	fs := NewLocalFileStorage(base, zap.NewNop())

	t.Run("creates parent directories", func(t *testing.T) {
		require.NoError(t, fs.Save(ctx, "pakker/p-1.xlsx", []byte("v1")))
		assert.FileExists(t, filepath.Join(base, "pakker", "p-1.xlsx"))
		assert.True(t, fs.Exists(ctx, "pakker/p-1.xlsx"))
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		require.NoError(t, fs.Save(ctx, "pakker/p-1.xlsx", []byte("v2")))
		content, err := fs.Read(ctx, "pakker/p-1.xlsx")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), content)
	})

	t.Run("leaves no temp files", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(base, "pakker"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, fs.Delete(ctx, "pakker/p-1.xlsx"))
		assert.False(t, fs.Exists(ctx, "pakker/p-1.xlsx"))
		assert.NoError(t, fs.Delete(ctx, "pakker/p-1.xlsx"))
	})

	t.Run("directories are not files", func(t *testing.T) {
		assert.False(t, fs.Exists(ctx, "pakker"))
	})
}

func TestLocalFileStorage_RejectsEscapes(t *testing.T) {
	ctx := context.Background()
	fs := NewLocalFileStorage(t.TempDir(), zap.NewNop())

	for _, p := range []string{"../outside.txt", "pakker/../../outside.txt", "", "."} {
		t.Run(p, func(t *testing.T) {
			assert.ErrorIs(t, fs.Save(ctx, p, []byte("x")), ErrPathEscapesBase)
			_, err := fs.Read(ctx, p)
			assert.ErrorIs(t, err, ErrPathEscapesBase)
			assert.ErrorIs(t, fs.Delete(ctx, p), ErrPathEscapesBase)
			assert.False(t, fs.Exists(ctx, p))
		})
	}
}

func TestLocalFileStorage_ReadMissing(t *testing.T) {
	fs := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	_, err := fs.Read(context.Background(), "pakker/none.xlsx")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

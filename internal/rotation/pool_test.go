package rotation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"herald/internal/model"
)

func writePool(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestFilePoolLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	writePool(t, path, `{"morning":["gm"],"evening":["gn","bye"]}`)
	p, err := NewFilePool(path).Load()
	require.NoError(t, err)
	require.Equal(t, []string{"gm"}, p[model.Morning])
	require.Len(t, p[model.Evening], 2)
	require.Empty(t, p[model.Noon])
}

func TestFilePoolMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFilePool(filepath.Join(dir, "missing.json")).Load()
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	writePool(t, bad, `["not","a","map"]`)
	_, err = NewFilePool(bad).Load()
	require.Error(t, err)
}

func TestFilePoolWatchInvalidatesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	writePool(t, path, `{"noon":["one"]}`)
	fp := NewFilePool(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fp.Watch(ctx))

	p, err := fp.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"one"}, p[model.Noon])

	writePool(t, path, `{"noon":["two"]}`)
	require.Eventually(t, func() bool {
		p, err := fp.Load()
		return err == nil && len(p[model.Noon]) == 1 && p[model.Noon][0] == "two"
	}, 2*time.Second, 20*time.Millisecond)
}

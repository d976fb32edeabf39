package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ChamsBouzaiene/trailblaze/internal/tools/builtin"
	"github.com/ChamsBouzaiene/trailblaze/internal/trail"
	"github.com/ChamsBouzaiene/trailblaze/internal/watch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const loginTrail = `
- prompts:
    - step: log in as the demo user
`

func startWatcher(t *testing.T, root string) <-chan []watch.Change {
	t.Helper()
	repo, err := builtin.NewRepo(builtin.DefaultToolSet())
	require.NoError(t, err)

	w, err := watch.New(root, repo.Codec(), watch.WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	batches := make(chan []watch.Change, 16)
	w.OnChange(func(cs []watch.Change) { batches <- cs })
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { assert.NoError(t, w.Stop()) })
	return batches
}

// next waits for a batch mentioning path and returns its change.
func next(t *testing.T, batches <-chan []watch.Change, path string) watch.Change {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cs := <-batches:
			for _, c := range cs {
				if c.Path == path {
					return c
				}
			}
		case <-deadline:
			t.Fatalf("no change reported for %s", path)
		}
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcherDecodesChangedTrails(t *testing.T) {
	root := t.TempDir()
	root, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	batches := startWatcher(t, root)

	path := filepath.Join(root, "trail.yaml")
	write(t, path, loginTrail)
	c := next(t, batches, path)
	require.NoError(t, c.Err)
	require.Len(t, c.Items, 1)
	prompts, ok := c.Items[0].(trail.PromptsItem)
	require.True(t, ok)
	assert.Equal(t, "log in as the demo user", prompts.Steps[0].Text)

	write(t, path, "- bogus: []\n")
	c = next(t, batches, path)
	assert.Error(t, c.Err)
	assert.Empty(t, c.Items)

	require.NoError(t, os.Remove(path))
	c = next(t, batches, path)
	assert.True(t, c.Removed)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	root, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	batches := startWatcher(t, root)

	dir := filepath.Join(root, "checkout")
	require.NoError(t, os.Mkdir(dir, 0o755))
	path := filepath.Join(dir, "android-phone.trail.yaml")
	write(t, path, loginTrail)

	c := next(t, batches, path)
	assert.NoError(t, c.Err)
	assert.False(t, c.Removed)
}

func TestWatcherSkipsIgnoredAndForeignFiles(t *testing.T) {
	root := t.TempDir()
	root, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	write(t, filepath.Join(root, trail.IgnoreFileName), "drafts/\n")
	require.NoError(t, os.Mkdir(filepath.Join(root, "drafts"), 0o755))
	batches := startWatcher(t, root)

	write(t, filepath.Join(root, "drafts", "trail.yaml"), loginTrail)
	write(t, filepath.Join(root, "notes.txt"), "not a trail")
	marker := filepath.Join(root, "trail.yaml")
	write(t, marker, loginTrail)

	// Only the marker may be reported.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cs := <-batches:
			for _, c := range cs {
				assert.Equal(t, marker, c.Path)
				if c.Path == marker {
					return
				}
			}
		case <-deadline:
			t.Fatal("marker change not reported")
		}
	}
}

package placement

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/tubeq/internal/models"
)

var fixedNow = time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
}

func TestUniqueName_FreeNameKept(t *testing.T) {
	got, err := UniqueName(t.TempDir(), "clip.mp4", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", got)
}

func TestUniqueName_TimestampOnCollision(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "clip.mp4")

	got, err := UniqueName(dir, "clip.mp4", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "clip_20240501_130405.mp4", got)
}

func TestUniqueName_RepeatedCollisionsTerminate(t *testing.T) {
	dir := t.TempDir()
	seen := map[string]bool{}

	for i := 0; i < 20; i++ {
		got, err := UniqueName(dir, "collide.mp4", fixedNow)
		require.NoError(t, err)
		assert.False(t, seen[got], "name %s reused", got)
		seen[got] = true
		touch(t, dir, got)
	}
	assert.Len(t, seen, 20)
}

func TestUniqueName_ShortensThenFallsBack(t *testing.T) {
	var tried []string
	taken := func(path string) bool {
		tried = append(tried, filepath.Base(path))
		return false
	}

	_, err := uniqueName("/x", "abcdefgh.mp4", fixedNow, taken)
	assert.True(t, errors.Is(err, ErrNoFreeName))

	assert.Equal(t, "abcdefgh.mp4", tried[0])
	assert.Equal(t, "abcdefgh_20240501_130405.mp4", tried[1])
	assert.Equal(t, "abcd_20240501_130405.mp4", tried[2])
	assert.Equal(t, "ab_20240501_130405.mp4", tried[3])
	assert.Equal(t, "a_20240501_130405.mp4", tried[4])
	assert.Equal(t, "20240501_130405_1.mp4", tried[5])
	assert.Len(t, tried, 5+maxLastResort)
}

func TestUniqueName_LastResortIsUsed(t *testing.T) {
	free := func(path string) bool {
		return strings.HasSuffix(path, "20240501_130405_3.mp4")
	}

	got, err := uniqueName("/x", "ab.mp4", fixedNow, free)
	require.NoError(t, err)
	assert.Equal(t, "20240501_130405_3.mp4", got)
}

func TestApplyTag(t *testing.T) {
	root := "/media"

	dir, name := ApplyTag(root, "youtube", "clip.mp4", nil)
	assert.Equal(t, filepath.Join(root, "youtube"), dir)
	assert.Equal(t, "clip.mp4", name)

	dir, name = ApplyTag(root, "youtube", "clip.mp4", &models.Tag{Value: "youtube_later", Usage: models.TagUsageDirectory})
	assert.Equal(t, filepath.Join(root, "youtube_later"), dir)
	assert.Equal(t, "clip.mp4", name)

	dir, name = ApplyTag(root, "youtube", "clip.mp4", &models.Tag{Value: "music", Usage: models.TagUsagePrefix})
	assert.Equal(t, filepath.Join(root, "youtube"), dir)
	assert.Equal(t, "music_clip.mp4", name)

	_, name = ApplyTag(root, "youtube", "clip.mp4", &models.Tag{Value: "hq", Usage: models.TagUsageSuffix})
	assert.Equal(t, "clip_hq.mp4", name)

	dir, _ = ApplyTag(root, "youtube", "clip.mp4", &models.Tag{Value: "../escape", Usage: models.TagUsageDirectory})
	assert.Equal(t, filepath.Join(root, "escape"), dir)
}

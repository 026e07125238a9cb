package job

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBasenameFormat(t *testing.T) {
	ts := time.Date(2026, 7, 31, 10, 30, 0, 123_000_000, time.UTC)
	name := LogBasename(ts, 42, "alice")
	assert.Equal(t, "20260731-103000-123-42-alice", name)
}

func TestWriteEventAndWriteIncludeAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.log")

	log, err := OpenLog(path)
	require.NoError(t, err)

	require.NoError(t, log.WriteEvent("job.run.start", "suite1"))
	require.NoError(t, log.WriteInclude(filepath.Join(dir, "child.log"), 7, ResultComplete))

	raw, err := ReadLog(path)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "<ats>")
	assert.Contains(t, content, "</ats>")
	assert.Contains(t, content, "job.run.start")
	assert.Contains(t, content, "job-id=\"7\"")
}

func TestLogPathLayout(t *testing.T) {
	p := LogPath("/docroot", "suite1", "20260731-103000-123-42-alice")
	assert.Equal(t, "/docroot/archives/suite1/20260731-103000-123-42-alice.log", p)
}

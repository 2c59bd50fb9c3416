package runlog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendWritesDailyJSONL(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	l.now = func() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, l.Append(Entry{Model: "m", ArticleID: 7, Link: "https://x/7", State: "Declined"}))
	require.NoError(t, l.Append(Entry{Model: "m", ArticleID: 8, State: "ParseFailed", Reason: "no JSON"}))

	f, err := os.Open(filepath.Join(dir, "failed", "2025-03-15.txt"))
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "2025-03-15T10:00:00Z", entries[0].Time)
	assert.Equal(t, uint(7), entries[0].ArticleID)
	assert.Equal(t, "no JSON", entries[1].Reason)
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	old := filepath.Join(dir, "failed", "2025-01-01.txt")
	fresh := filepath.Join(dir, "failed", "2025-03-15.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(old), 0o755))
	require.NoError(t, os.WriteFile(old, []byte("old\n"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("fresh\n"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	require.NoError(t, l.CompressOlder(7))

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)

	f, err := os.Open(old + ".gz")
	require.NoError(t, err)
	defer f.Close()
	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	b, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(b))
}

package logtable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournalUpdateAndCheck(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(dataPath, []byte("hello"), 0644))

	j, err := newJournal(filepath.Join(dir, journalFileName))
	require.NoError(t, err)
	require.NoError(t, j.update([]string{dataPath}))
	require.True(t, j.check(dir))

	require.NoError(t, os.WriteFile(dataPath, []byte("hello world"), 0644))
	require.False(t, j.check(dir))
}

func TestJournalPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(dataPath, []byte("hello"), 0644))

	path := filepath.Join(dir, journalFileName)
	j1, err := newJournal(path)
	require.NoError(t, err)
	require.NoError(t, j1.update([]string{dataPath}))

	j2, err := newJournal(path)
	require.NoError(t, err)
	require.True(t, j2.check(dir))
}

func TestJournalMissingFileFailsCheck(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(dataPath, []byte("hello"), 0644))

	j, err := newJournal(filepath.Join(dir, journalFileName))
	require.NoError(t, err)
	require.NoError(t, j.update([]string{dataPath}))

	require.NoError(t, os.Remove(dataPath))
	require.False(t, j.check(dir))
}

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-certgen/internal/dataset"
	"go-certgen/internal/placeholder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0o600))
	return path
}

func TestCreateAndGet(t *testing.T) {
	sm := NewSessionManager()
	s := sm.CreateSession()
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StatusIdle, s.Status)

	got, ok := sm.GetSession(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	sm.DeleteSession(s.ID)
	_, ok = sm.GetSession(s.ID)
	assert.False(t, ok)
}

func TestReplacingUploadsRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewSessionManager().CreateSession()

	first := touch(t, dir, "a.pdf")
	s.SetTemplate(first)
	s.SetAnalysis(&placeholder.Result{})
	s.OutputFile = touch(t, dir, "out.zip")
	s.Status = StatusDone

	second := touch(t, dir, "b.pdf")
	s.SetTemplate(second)

	assert.NoFileExists(t, first)
	assert.NoFileExists(t, filepath.Join(dir, "out.zip"))
	assert.FileExists(t, second)
	assert.Nil(t, s.Analysis)
	assert.Empty(t, s.OutputFile)
	assert.Equal(t, StatusIdle, s.Status)

	table := &dataset.Table{Columns: []string{"name"}}
	s.SetData(touch(t, dir, "d.csv"), table)
	s.SetSignature(touch(t, dir, "sig.png"))
	template, signature, got := s.Inputs()
	assert.Equal(t, second, template)
	assert.Equal(t, filepath.Join(dir, "sig.png"), signature)
	assert.Same(t, table, got)
}

func TestExpire(t *testing.T) {
	dir := t.TempDir()
	sm := NewSessionManager()

	old := sm.CreateSession()
	old.CreatedAt = time.Now().Add(-time.Hour)
	file := touch(t, dir, "old.pdf")
	old.SetTemplate(file)
	fresh := sm.CreateSession()

	assert.Equal(t, 1, sm.Expire(30*time.Minute))
	_, ok := sm.GetSession(old.ID)
	assert.False(t, ok)
	assert.NoFileExists(t, file)
	_, ok = sm.GetSession(fresh.ID)
	assert.True(t, ok)

	sm.CleanupAll()
	assert.Empty(t, sm.Sessions)
}

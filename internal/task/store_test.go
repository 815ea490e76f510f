package task

import (
	"context"
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavemcp/wavemcp/internal/lock"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	locks := lock.NewManager("test-process", lock.DefaultConfig())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	render := func(tk *Task) string { return "# Task: " + tk.Title }
	return NewStore(locks, render, logger)
}

func TestStore_CreateThenLoad(t *testing.T) {
	root := t.TempDir()
	s := testStore(t)
	tk := &Task{ID: NewID(), Title: "Example", Slug: "example", CreatedAt: time.Now().UTC()}

	require.NoError(t, s.Create(context.Background(), root, tk))

	dir := Dir(root, tk.CreatedAt, tk.Slug, tk.ID)
	loaded, err := s.Load(context.Background(), dir, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.Title, loaded.Title)
	assert.Equal(t, 1, loaded.Version)
}

func TestStore_MutateIncrementsVersionAndRejectsStaleExpected(t *testing.T) {
	root := t.TempDir()
	s := testStore(t)
	tk := &Task{ID: NewID(), Title: "Example", Slug: "example", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Create(context.Background(), root, tk))
	dir := Dir(root, tk.CreatedAt, tk.Slug, tk.ID)

	updated, err := s.Mutate(context.Background(), dir, tk.ID, 1, "ai", func(t *Task) error {
		t.Title = "Renamed"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "ai", updated.ModifiedBy)

	_, err = s.Mutate(context.Background(), dir, tk.ID, 1, "ai", func(t *Task) error { return nil })
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestStore_AppendLogPersistsAndMirrorsIntoAggregate(t *testing.T) {
	root := t.TempDir()
	s := testStore(t)
	tk := &Task{ID: NewID(), Title: "Example", Slug: "example", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Create(context.Background(), root, tk))
	dir := Dir(root, tk.CreatedAt, tk.Slug, tk.ID)

	entry := LogEntry{Timestamp: time.Now().UTC(), Level: "info", Category: "build", Action: "start", Message: "kicked off"}
	updated, err := s.AppendLog(context.Background(), dir, tk.ID, entry)
	require.NoError(t, err)
	require.Len(t, updated.Logs, 1)
	assert.Equal(t, "kicked off", updated.Logs[0].Message)

	highlights, total, err := ReadLogs(dir, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, highlights, 1)
	assert.Equal(t, "kicked off", highlights[0].Message)
}

func TestReadLogs_LimitReturnsTail(t *testing.T) {
	root := t.TempDir()
	s := testStore(t)
	tk := &Task{ID: NewID(), Title: "Example", Slug: "example", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Create(context.Background(), root, tk))
	dir := Dir(root, tk.CreatedAt, tk.Slug, tk.ID)

	for i := 0; i < 5; i++ {
		_, err := s.AppendLog(context.Background(), dir, tk.ID, LogEntry{Timestamp: time.Now().UTC(), Message: string(rune('a' + i))})
		require.NoError(t, err)
	}

	highlights, total, err := ReadLogs(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, highlights, 2)
	assert.Equal(t, "d", highlights[0].Message)
	assert.Equal(t, "e", highlights[1].Message)
}

func TestDir_UsesDatedSlugAndShortID(t *testing.T) {
	created := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	dir := Dir("/root/proj", created, "my-task", "01HABCDEF0123456789ABCDEF")
	assert.Contains(t, dir, "2024/03/05")
	assert.Contains(t, dir, "my-task--01habcde")
}

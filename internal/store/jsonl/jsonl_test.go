package jsonl

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hackchat/internal/store"
	"github.com/nfrund/hackchat/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.MessageStore {
		s, err := Open(afero.NewMemMapFs(), "/data/messages.jsonl")
		require.NoError(t, err)
		return s
	})
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	s, err := Open(fs, "messages.jsonl")
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, storetest.NewMessage("r", 1, "U1", "one")))
	require.NoError(t, s.Create(ctx, storetest.NewMessage("r", 2, "U1", "two")))
	_, err = s.AddReader(ctx, []string{"r-001"}, "U2")
	require.NoError(t, err)
	require.NoError(t, s.MarkDeleted(ctx, "r-002"))
	require.NoError(t, s.Close())

	reopened, err := Open(fs, "messages.jsonl")
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "r-001")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, got.ReadBy)

	got, err = reopened.Get(ctx, "r-002")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	latest, err := reopened.Latest(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Seq)
}

func TestReplay_SkipsTornLine(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	s, err := Open(fs, "messages.jsonl")
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, storetest.NewMessage("r", 1, "U1", "one")))
	require.NoError(t, s.Close())

	f, err := fs.OpenFile("messages.jsonl", os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte(`{"op":"create","mess`))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(fs, "messages.jsonl")
	require.NoError(t, err)

	require.NoError(t, reopened.Create(ctx, storetest.NewMessage("r", 2, "U1", "two")))
	require.NoError(t, reopened.Close())

	again, err := Open(fs, "messages.jsonl")
	require.NoError(t, err)
	defer again.Close()

	page, total, err := again.List(ctx, store.Query{RoomID: "r", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 2)
}

func TestAddReader_NoopWritesNothing(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	s, err := Open(fs, "messages.jsonl")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Create(ctx, storetest.NewMessage("r", 1, "U1", "one")))

	before, err := afero.ReadFile(fs, "messages.jsonl")
	require.NoError(t, err)

	n, err := s.AddReader(ctx, []string{"r-001", "missing"}, "U1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	after, err := afero.ReadFile(fs, "messages.jsonl")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// faultyFs hands out log files whose next writes or syncs fail on demand.
type faultyFs struct {
	afero.Fs
	failWrites int
	failSyncs  int
}

func (fs *faultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: f, fs: fs}, nil
}

type faultyFile struct {
	afero.File
	fs *faultyFs
}

// Write stores half of p before failing, like a full disk.
func (f *faultyFile) Write(p []byte) (int, error) {
	if f.fs.failWrites > 0 {
		f.fs.failWrites--
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errors.New("no space left on device")
	}
	return f.File.Write(p)
}

func (f *faultyFile) Sync() error {
	if f.fs.failSyncs > 0 {
		f.fs.failSyncs--
		return errors.New("input/output error")
	}
	return f.File.Sync()
}

func TestCreate_FailedAppendLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	fs := &faultyFs{Fs: afero.NewMemMapFs()}

	s, err := Open(fs, "messages.jsonl")
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, storetest.NewMessage("r", 1, "U1", "one")))

	fs.failWrites = 1
	require.Error(t, s.Create(ctx, storetest.NewMessage("r", 2, "U1", "torn")))
	fs.failSyncs = 1
	require.Error(t, s.Create(ctx, storetest.NewMessage("r", 3, "U1", "unsynced")))

	require.NoError(t, s.Create(ctx, storetest.NewMessage("r", 4, "U1", "four")))
	require.NoError(t, s.Close())

	reopened, err := Open(fs, "messages.jsonl")
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(ctx, "r-004")
	require.NoError(t, err)
	for _, id := range []string{"r-002", "r-003"} {
		_, err = reopened.Get(ctx, id)
		assert.Error(t, err, id)
	}
	_, total, err := reopened.List(ctx, store.Query{RoomID: "r", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

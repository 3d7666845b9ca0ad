package output

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/storage"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *storage.BadgerStore {
	t.Helper()
	store, err := storage.NewBadgerStore(context.Background(), t.TempDir(), "cityviews", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// failingFs fails every open of one path
type failingFs struct {
	afero.Fs
	failPath string
}

func (f failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == f.failPath {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestAferoFileSystem_EnsureDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := NewAferoFileSystem(fs, testLogger())

	require.NoError(t, a.EnsureDirectory("sitemap/landmark"))
	require.NoError(t, a.EnsureDirectory("sitemap/landmark"), "existing directory is not an error")

	info, err := fs.Stat("sitemap/landmark")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAferoFileSystem_EnsureDirectory_Failure(t *testing.T) {
	a := NewAferoFileSystem(afero.NewReadOnlyFs(afero.NewMemMapFs()), testLogger())

	err := a.EnsureDirectory("sitemap")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrFilesystem)
	assert.Equal(t, "Filesystem_Permission", utils.CategorizeError(err))
}

func TestAferoFileSystem_WriteFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := NewAferoFileSystem(fs, testLogger())

	require.NoError(t, a.WriteFile("sitemap.xml", []byte("<a/>")))
	require.NoError(t, a.WriteFile("sitemap.xml", []byte("<b/>")))

	data, err := afero.ReadFile(fs, "sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, "<b/>", string(data))
	assert.Equal(t, Stats{Written: 2}, a.Stats())
	assert.Equal(t, models.FileStatusWritten, a.Status("sitemap.xml"))
	assert.Equal(t, []string{"sitemap.xml"}, a.Produced())
}

func TestAferoFileSystem_WriteFile_Failure(t *testing.T) {
	fs := failingFs{Fs: afero.NewMemMapFs(), failPath: "sitemap/main/sitemap.xml"}
	a := NewAferoFileSystem(fs, testLogger())

	require.NoError(t, a.WriteFile("sitemap/city/sitemap.xml", []byte("<ok/>")))
	err := a.WriteFile("sitemap/main/sitemap.xml", []byte("<nope/>"))
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrFilesystem)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "sitemap/main/sitemap.xml")

	assert.Equal(t, models.FileStatusFailed, a.Status("sitemap/main/sitemap.xml"))
	assert.Equal(t, Stats{Written: 1}, a.Stats())
}

func TestAferoFileSystem_Incremental(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newTestStore(t)

	first := NewAferoFileSystem(fs, testLogger(), WithStateStore(store, "run-1"))
	require.NoError(t, first.WriteFile("sitemap.xml", []byte("<index/>")))
	require.NoError(t, first.WriteFile("main/sitemap.xml", []byte("<main/>")))
	assert.Equal(t, Stats{Written: 2}, first.Stats())

	entry, exists, err := store.GetFileState("sitemap.xml")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, utils.HashBytes([]byte("<index/>")), entry.Hash)
	assert.Equal(t, int64(len("<index/>")), entry.Size)
	assert.Equal(t, "run-1", entry.RunID)

	second := NewAferoFileSystem(fs, testLogger(), WithStateStore(store, "run-2"))
	require.NoError(t, second.WriteFile("sitemap.xml", []byte("<index/>")))
	require.NoError(t, second.WriteFile("main/sitemap.xml", []byte("<main changed/>")))
	assert.Equal(t, Stats{Written: 1, Skipped: 1}, second.Stats())
	assert.Equal(t, models.FileStatusSkipped, second.Status("sitemap.xml"))
	assert.Equal(t, models.FileStatusWritten, second.Status("main/sitemap.xml"))

	data, err := afero.ReadFile(fs, "main/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, "<main changed/>", string(data))
}

func TestAferoFileSystem_Incremental_RewritesMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newTestStore(t)

	first := NewAferoFileSystem(fs, testLogger(), WithStateStore(store, "run-1"))
	require.NoError(t, first.WriteFile("sitemap.xml", []byte("<index/>")))
	require.NoError(t, fs.Remove("sitemap.xml"))

	second := NewAferoFileSystem(fs, testLogger(), WithStateStore(store, "run-2"))
	require.NoError(t, second.WriteFile("sitemap.xml", []byte("<index/>")))
	assert.Equal(t, Stats{Written: 1}, second.Stats())

	exists, err := afero.Exists(fs, "sitemap.xml")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAferoFileSystem_Incremental_RewritesEditedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newTestStore(t)

	first := NewAferoFileSystem(fs, testLogger(), WithStateStore(store, "run-1"))
	require.NoError(t, first.WriteFile("sitemap.xml", []byte("<index/>")))
	// Same size, different content
	require.NoError(t, afero.WriteFile(fs, "sitemap.xml", []byte("<INDEX/>"), 0644))

	second := NewAferoFileSystem(fs, testLogger(), WithStateStore(store, "run-2"))
	require.NoError(t, second.WriteFile("sitemap.xml", []byte("<index/>")))
	assert.Equal(t, Stats{Written: 1}, second.Stats())

	data, err := afero.ReadFile(fs, "sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, "<index/>", string(data))
}

func TestAferoFileSystem_PruneStale(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newTestStore(t)

	first := NewAferoFileSystem(fs, testLogger(), WithStateStore(store, "run-1"))
	for _, p := range []string{"sitemap.xml", "landmark/sitemap.xml", "landmark/sitemap_2.xml"} {
		require.NoError(t, first.WriteFile(p, []byte(p)))
	}
	// Not tracked, must survive pruning
	require.NoError(t, afero.WriteFile(fs, "robots.txt", []byte("User-agent: *"), 0644))

	second := NewAferoFileSystem(fs, testLogger(), WithStateStore(store, "run-2"))
	require.NoError(t, second.WriteFile("sitemap.xml", []byte("sitemap.xml")))
	require.NoError(t, second.WriteFile("landmark/sitemap.xml", []byte("shrunk")))

	pruned, err := second.PruneStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"landmark/sitemap_2.xml"}, pruned)
	assert.Equal(t, 1, second.Stats().Pruned)

	exists, err := afero.Exists(fs, "landmark/sitemap_2.xml")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = afero.Exists(fs, "robots.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	_, tracked, err := store.GetFileState("landmark/sitemap_2.xml")
	require.NoError(t, err)
	assert.False(t, tracked)
}

func TestAferoFileSystem_PruneStale_WithoutStore(t *testing.T) {
	a := NewAferoFileSystem(afero.NewMemMapFs(), testLogger())
	pruned, err := a.PruneStale(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, pruned)
}

// brokenStore fails every lookup and update
type brokenStore struct {
	storage.FileStateStore
}

func (brokenStore) GetFileState(string) (*models.FileStateEntry, bool, error) {
	return nil, false, utils.ErrDatabase
}

func (brokenStore) UpdateFileState(string, *models.FileStateEntry) error {
	return utils.ErrDatabase
}

func TestAferoFileSystem_StateErrorsDoNotFailWrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := NewAferoFileSystem(fs, testLogger(), WithStateStore(brokenStore{}, "run-1"))

	require.NoError(t, a.WriteFile("sitemap.xml", []byte("<index/>")))
	assert.Equal(t, Stats{Written: 1}, a.Stats())

	data, err := afero.ReadFile(fs, "sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, "<index/>", string(data))
}

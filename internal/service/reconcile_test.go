package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lenscape/internal/models"
	"lenscape/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStored(t *testing.T, root, name string, age time.Duration) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o600))
	mod := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestReconciler_Scan(t *testing.T) {
	store := newStore(t)
	repo := testutil.NewPostRepoStub()

	writeStored(t, store.Root(), "1_aaaa.png", 0)
	writeStored(t, store.Root(), "1_orphan.png", 2*time.Hour)
	repo.Seed(&models.Post{UserID: 1, ImageURL: "/uploads/1_aaaa.png"})
	repo.Seed(&models.Post{UserID: 1, ImageURL: "/uploads/1_gone.png"})
	repo.Seed(&models.Post{UserID: 2, ImageURL: "/uploads/../escape.png"})
	repo.Seed(&models.Post{UserID: 2, ImageURL: "https://elsewhere.example/x.png"})

	report, err := NewReconciler(repo, store).Scan(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Clean())
	assert.Equal(t, 2, report.FilesScanned)
	assert.Equal(t, 4, report.PostsScanned)
	require.Len(t, report.OrphanFiles, 1)
	assert.Equal(t, "1_orphan.png", report.OrphanFiles[0].Name)

	reasons := map[string]string{}
	for _, issue := range report.DanglingPosts {
		reasons[issue.ImageURL] = issue.Reason
	}
	assert.Len(t, reasons, 3)
	assert.Equal(t, "file missing", reasons["/uploads/1_gone.png"])
	assert.Contains(t, reasons, "/uploads/../escape.png")
	assert.Contains(t, reasons, "https://elsewhere.example/x.png")
}

func TestReconciler_CleanStore(t *testing.T) {
	store := newStore(t)
	repo := testutil.NewPostRepoStub()
	svc := NewPostService(repo, store, testMaxUpload)
	seedPost(t, svc, 3)

	report, err := NewReconciler(repo, store).Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestReconciler_PruneHonoursGracePeriod(t *testing.T) {
	store := newStore(t)
	repo := testutil.NewPostRepoStub()
	writeStored(t, store.Root(), "1_old.png", 3*time.Hour)
	writeStored(t, store.Root(), "1_fresh.png", time.Minute)

	rec := NewReconciler(repo, store)
	report, err := rec.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, report.OrphanFiles, 2)

	rec.Prune(context.Background(), report, DefaultOrphanGracePeriod)

	assert.Equal(t, []string{"1_old.png"}, report.Pruned)
	assert.Empty(t, report.PruneErrors)
	ok, err := store.Exists("1_old.png")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.Exists("1_fresh.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconciler_PruneRecordsFailures(t *testing.T) {
	disk := newStore(t)
	writeStored(t, disk.Root(), "1_old.png", 3*time.Hour)

	rec := NewReconciler(testutil.NewPostRepoStub(), removeFailStore{Store: disk, err: os.ErrPermission})
	report, err := rec.Scan(context.Background())
	require.NoError(t, err)

	rec.Prune(context.Background(), report, time.Hour)
	assert.Empty(t, report.Pruned)
	require.Len(t, report.PruneErrors, 1)
	assert.Contains(t, report.PruneErrors[0], "1_old.png")
}

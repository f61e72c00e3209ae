package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"lenscape/internal/middleware"
	"lenscape/internal/repository"
	"lenscape/internal/storage"
)

// DefaultOrphanGracePeriod keeps Prune away from files whose post insert may
// still be in flight.
const DefaultOrphanGracePeriod = time.Hour

// InventoryStore is the part of the content store the reconciler uses.
type InventoryStore interface {
	Root() string
	List() ([]storage.StoredFile, error)
	Exists(name string) (bool, error)
	Remove(name string) error
	NameFromReference(ref string) (string, error)
}

// OrphanFile is a stored file that no post references.
type OrphanFile struct {
	Name    string    `yaml:"name"`
	Size    int64     `yaml:"size"`
	ModTime time.Time `yaml:"mod_time"`
}

// PostIssue describes a post whose reference is broken.
type PostIssue struct {
	PostID   uint   `yaml:"post_id"`
	UserID   uint   `yaml:"user_id"`
	ImageURL string `yaml:"image_url"`
	Reason   string `yaml:"reason"`
}

// ReconcileReport is the result of comparing the content store with the posts table.
type ReconcileReport struct {
	GeneratedAt   time.Time    `yaml:"generated_at"`
	Root          string       `yaml:"root"`
	FilesScanned  int          `yaml:"files_scanned"`
	PostsScanned  int          `yaml:"posts_scanned"`
	OrphanFiles   []OrphanFile `yaml:"orphan_files"`
	DanglingPosts []PostIssue  `yaml:"dangling_posts"`
	Pruned        []string     `yaml:"pruned,omitempty"`
	PruneErrors   []string     `yaml:"prune_errors,omitempty"`
}

// Clean reports whether the store and the table agree.
func (r *ReconcileReport) Clean() bool {
	return len(r.OrphanFiles) == 0 && len(r.DanglingPosts) == 0
}

type Reconciler struct {
	postRepo repository.PostRepository
	store    InventoryStore
	now      func() time.Time
}

func NewReconciler(postRepo repository.PostRepository, store InventoryStore) *Reconciler {
	return &Reconciler{postRepo: postRepo, store: store, now: time.Now}
}

// Scan lists orphan files and posts whose file is missing or whose reference
// does not resolve inside the store. It changes nothing.
func (r *Reconciler) Scan(ctx context.Context) (*ReconcileReport, error) {
	files, err := r.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing content store: %w", err)
	}
	refs, err := r.postRepo.ListImageRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing post references: %w", err)
	}

	report := &ReconcileReport{
		GeneratedAt:  r.now().UTC(),
		Root:         r.store.Root(),
		FilesScanned: len(files),
		PostsScanned: len(refs),
	}

	referenced := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		issue := PostIssue{PostID: ref.PostID, UserID: ref.UserID, ImageURL: ref.ImageURL}

		name, err := r.store.NameFromReference(ref.ImageURL)
		if err != nil {
			issue.Reason = err.Error()
			report.DanglingPosts = append(report.DanglingPosts, issue)
			continue
		}
		exists, err := r.store.Exists(name)
		switch {
		case errors.Is(err, storage.ErrOutsideRoot), errors.Is(err, storage.ErrInvalidName):
			issue.Reason = err.Error()
			report.DanglingPosts = append(report.DanglingPosts, issue)
			continue
		case err != nil:
			return nil, fmt.Errorf("checking %s: %w", name, err)
		case !exists:
			issue.Reason = "file missing"
			report.DanglingPosts = append(report.DanglingPosts, issue)
			continue
		}
		referenced[name] = struct{}{}
	}

	for _, f := range files {
		if _, ok := referenced[f.Name]; ok {
			continue
		}
		report.OrphanFiles = append(report.OrphanFiles, OrphanFile{Name: f.Name, Size: f.Size, ModTime: f.ModTime.UTC()})
	}
	sort.Slice(report.OrphanFiles, func(i, j int) bool { return report.OrphanFiles[i].Name < report.OrphanFiles[j].Name })

	middleware.Logger.InfoContext(ctx, "reconcile scan finished",
		slog.Int("files", report.FilesScanned),
		slog.Int("posts", report.PostsScanned),
		slog.Int("orphans", len(report.OrphanFiles)),
		slog.Int("dangling", len(report.DanglingPosts)),
	)
	return report, nil
}

// Prune removes the orphan files in report that are older than grace and
// records what it did on the report. Dangling posts are never touched.
func (r *Reconciler) Prune(ctx context.Context, report *ReconcileReport, grace time.Duration) {
	cutoff := r.now().Add(-grace)
	for _, orphan := range report.OrphanFiles {
		if orphan.ModTime.After(cutoff) {
			continue
		}
		if err := r.store.Remove(orphan.Name); err != nil && !errors.Is(err, os.ErrNotExist) {
			report.PruneErrors = append(report.PruneErrors, fmt.Sprintf("%s: %v", orphan.Name, err))
			middleware.Logger.ErrorContext(ctx, "failed to prune orphan file",
				slog.String("file", orphan.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Pruned = append(report.Pruned, orphan.Name)
	}
}

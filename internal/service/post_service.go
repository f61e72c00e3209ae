// Package service holds the business operations behind the HTTP handlers.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"lenscape/internal/middleware"
	"lenscape/internal/models"
	"lenscape/internal/observability"
	"lenscape/internal/repository"
	"lenscape/internal/storage"
	"lenscape/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ContentStore is the part of the content store the post pipelines use.
type ContentStore interface {
	Save(ctx context.Context, name string, r io.Reader, maxBytes int64) (int64, error)
	Remove(name string) error
	Reference(name string) string
	NameFromReference(ref string) (string, error)
}

type PostService struct {
	postRepo       repository.PostRepository
	store          ContentStore
	maxUploadBytes int64
}

type CreatePostInput struct {
	UserID  uint
	Caption string
	Upload  validation.UploadDescriptor
	Content io.Reader
}

type UpdateCaptionInput struct {
	UserID  uint
	PostID  uint
	Caption string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

// NewPostService wires the pipelines to a repository and a content store.
// A non-positive maxUploadBytes selects validation.DefaultMaxUploadBytes.
func NewPostService(postRepo repository.PostRepository, store ContentStore, maxUploadBytes int64) *PostService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = validation.DefaultMaxUploadBytes
	}
	return &PostService{
		postRepo:       postRepo,
		store:          store,
		maxUploadBytes: maxUploadBytes,
	}
}

// CreatePost ingests one image post. The file is written before the row is
// inserted; if the insert fails the file is removed again and the caller gets
// the persistence error.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	span, ctx := observability.NewSpan(ctx, "PostService.CreatePost",
		attribute.Int64("upload.declared_size", in.Upload.Size),
		attribute.String("upload.content_type", in.Upload.ContentType),
	)
	defer span.End()

	post, err := s.createPost(ctx, span, in)
	span.SetError(err)
	return post, err
}

func (s *PostService) createPost(ctx context.Context, span *observability.Span, in CreatePostInput) (*models.Post, error) {
	if in.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}

	ext, err := validation.ValidateUpload(in.Upload, s.maxUploadBytes)
	if err != nil {
		recordRejection(err)
		return nil, err
	}

	if in.Content == nil {
		observability.UploadRejections.WithLabelValues(models.CodeValidation).Inc()
		return nil, models.NewValidationError("No file uploaded")
	}

	name := storage.GenerateName(in.UserID, ext)
	span.AddAttributes(attribute.String("upload.stored_name", name))

	written, err := s.store.Save(ctx, name, in.Content, s.maxUploadBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			tooLarge := models.NewFileTooLargeError(s.maxUploadBytes)
			recordRejection(tooLarge)
			return nil, tooLarge
		}
		observability.Ingestions.WithLabelValues("storage_failure").Inc()
		middleware.Logger.ErrorContext(ctx, "failed to write uploaded file",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
		return nil, models.NewStorageError(err)
	}

	post := &models.Post{
		UserID:   in.UserID,
		Caption:  in.Caption,
		ImageURL: s.store.Reference(name),
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		observability.Ingestions.WithLabelValues("persistence_failure").Inc()
		middleware.Logger.ErrorContext(ctx, "failed to persist post, removing stored file",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
		s.discardFile(ctx, span, name)
		return nil, models.NewPersistenceError(err)
	}

	observability.Ingestions.WithLabelValues("success").Inc()
	observability.IngestedBytes.Observe(float64(written))
	middleware.Logger.InfoContext(ctx, "post created",
		slog.Uint64("post_id", uint64(post.ID)),
		slog.String("image_url", post.ImageURL),
		slog.Int64("bytes", written),
	)

	// The row is committed; a failed re-read only loses the preloaded owner.
	if stored, err := s.postRepo.GetByID(ctx, post.ID); err == nil {
		return stored, nil
	}
	return post, nil
}

// discardFile is the compensating delete for a failed insert. Failure leaves
// an orphan that is logged and counted but never replaces the caller's error.
func (s *PostService) discardFile(ctx context.Context, span *observability.Span, name string) {
	err := s.store.Remove(name)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return
	}
	observability.OrphanedFiles.WithLabelValues(observability.StageIngest).Inc()
	span.AddEvent("compensating_delete_failed", attribute.String("file", name))
	middleware.Logger.ErrorContext(ctx, "compensating delete failed, stored file orphaned",
		slog.String("file", name),
		slog.String("error", err.Error()),
	)
}

// DeletePost removes a post owned by the requester. File removal is
// best-effort; deleting the row is the operation of record.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	span, ctx := observability.NewSpan(ctx, "PostService.DeletePost",
		attribute.Int64("post.id", int64(in.PostID)),
	)
	defer span.End()

	err := s.deletePost(ctx, span, in)
	span.SetError(err)
	return err
}

func (s *PostService) deletePost(ctx context.Context, span *observability.Span, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return lookupError(err, in.PostID)
	}
	if post.UserID != in.UserID {
		return models.NewForbiddenError("You can only delete your own posts")
	}

	s.removeStoredFile(ctx, span, post)

	if err := s.postRepo.Delete(ctx, post.ID); err != nil {
		return lookupError(err, in.PostID)
	}

	middleware.Logger.InfoContext(ctx, "post deleted",
		slog.Uint64("post_id", uint64(post.ID)),
		slog.String("image_url", post.ImageURL),
	)
	return nil
}

// removeStoredFile never fails the caller. References that do not map to a
// file directly under the store root are integrity anomalies and are skipped.
func (s *PostService) removeStoredFile(ctx context.Context, span *observability.Span, post *models.Post) {
	logAttrs := []any{
		slog.Uint64("post_id", uint64(post.ID)),
		slog.String("image_url", post.ImageURL),
	}

	name, err := s.store.NameFromReference(post.ImageURL)
	if err == nil {
		err = s.store.Remove(name)
	}

	switch {
	case err == nil:
		return
	case errors.Is(err, storage.ErrOutsideRoot),
		errors.Is(err, storage.ErrForeignReference),
		errors.Is(err, storage.ErrInvalidName):
		observability.ContainmentViolations.Inc()
		span.AddEvent("file_removal_skipped", attribute.String("reason", err.Error()))
		middleware.Logger.WarnContext(ctx, "stored reference failed containment check, skipping file removal",
			append(logAttrs, slog.String("error", err.Error()))...)
	case errors.Is(err, os.ErrNotExist):
		middleware.Logger.WarnContext(ctx, "stored file already missing", logAttrs...)
	default:
		observability.OrphanedFiles.WithLabelValues(observability.StageDelete).Inc()
		span.AddEvent("file_removal_failed", attribute.String("error", err.Error()))
		middleware.Logger.ErrorContext(ctx, "failed to remove stored file",
			append(logAttrs, slog.String("error", err.Error()))...)
	}
}

// GetPost returns a post for display. It may be served from the cache.
func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.postRepo.GetByIDCached(ctx, id)
	if err != nil {
		return nil, lookupError(err, id)
	}
	return post, nil
}

// ListPosts returns posts newest first.
func (s *PostService) ListPosts(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	posts, err := s.postRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// GetUserPosts returns one user's posts newest first.
func (s *PostService) GetUserPosts(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, error) {
	posts, err := s.postRepo.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// UpdateCaption edits the caption of a post owned by the requester. Captions
// are free text of any length and are stored as sent.
func (s *PostService) UpdateCaption(ctx context.Context, in UpdateCaptionInput) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, lookupError(err, in.PostID)
	}
	if post.UserID != in.UserID {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}

	if err := s.postRepo.UpdateCaption(ctx, post.ID, in.Caption); err != nil {
		return nil, lookupError(err, in.PostID)
	}
	post.Caption = in.Caption
	return post, nil
}

func lookupError(err error, postID uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError("Post", postID)
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}

func recordRejection(err error) {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		observability.UploadRejections.WithLabelValues(appErr.Code).Inc()
	}
}

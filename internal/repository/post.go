// Package repository provides the GORM data access layer.
package repository

import (
	"context"
	"time"

	"lenscape/internal/cache"
	"lenscape/internal/models"
	"lenscape/internal/observability"

	"gorm.io/gorm"
)

// DefaultPageSize and MaxPageSize bound list queries.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PostRepository defines persistence operations for posts.
//
// GetByID always reads the database and is what mutating operations use to
// decide ownership. GetByIDCached may serve a recently cached copy and is only
// for display.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetByIDCached(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, limit, offset int) ([]*models.Post, error)
	GetByUserID(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, error)
	UpdateCaption(ctx context.Context, id uint, caption string) error
	Delete(ctx context.Context, id uint) error
	ListImageRefs(ctx context.Context) ([]ImageRef, error)
}

// ImageRef is the slice of a post the reconciler needs.
type ImageRef struct {
	PostID    uint
	UserID    uint
	ImageURL  string
	CreatedAt time.Time
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// Create inserts post in its own transaction. On return without error the row is committed.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("create", "posts")()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("User").Create(post).Error
	})
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	defer observability.TrackQuery("get", "posts")()
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("User").First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetByIDCached(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := cache.CacheAside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		fresh, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		post = *fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	defer observability.TrackQuery("list", "posts")()
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Preload("User").
		Order("created_at DESC").
		Order("id DESC").
		Limit(clampLimit(limit)).
		Offset(clampOffset(offset)).
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) GetByUserID(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, error) {
	defer observability.TrackQuery("list_by_user", "posts")()
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(clampLimit(limit)).
		Offset(clampOffset(offset)).
		Find(&posts).Error
	return posts, err
}

// UpdateCaption returns gorm.ErrRecordNotFound when no row has id.
func (r *postRepository) UpdateCaption(ctx context.Context, id uint, caption string) error {
	defer observability.TrackQuery("update", "posts")()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Post{}).Where("id = ?", id).Update("caption", caption)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	cache.InvalidatePost(ctx, id)
	return nil
}

// Delete hard-deletes the row. It returns gorm.ErrRecordNotFound when the row
// was already gone, e.g. removed by a concurrent request.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	defer observability.TrackQuery("delete", "posts")()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	cache.InvalidatePost(ctx, id)
	return nil
}

func (r *postRepository) ListImageRefs(ctx context.Context) ([]ImageRef, error) {
	defer observability.TrackQuery("list_refs", "posts")()
	var refs []ImageRef
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Select("id AS post_id, user_id, image_url, created_at").
		Order("id").
		Scan(&refs).Error
	return refs, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

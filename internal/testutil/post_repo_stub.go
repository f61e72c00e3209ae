// Package testutil provides shared test doubles and fixtures.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sort"
	"sync"
	"time"

	"lenscape/internal/models"
	"lenscape/internal/repository"

	"gorm.io/gorm"
)

// PostRepoStub is an in-memory repository.PostRepository. The *Err fields
// force the matching method to fail without touching state.
type PostRepoStub struct {
	mu     sync.Mutex
	items  map[uint]*models.Post
	nextID uint

	CreateErr error
	GetErr    error
	DeleteErr error
	UpdateErr error

	// CreateCalls counts Create invocations, including failed ones.
	CreateCalls int
}

var _ repository.PostRepository = (*PostRepoStub)(nil)

// NewPostRepoStub creates an empty stub.
func NewPostRepoStub() *PostRepoStub {
	return &PostRepoStub{items: make(map[uint]*models.Post), nextID: 1}
}

// Seed stores post as-is, assigning an ID when it has none.
func (s *PostRepoStub) Seed(post *models.Post) *models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.ID == 0 {
		post.ID = s.nextID
		s.nextID++
	} else if post.ID >= s.nextID {
		s.nextID = post.ID + 1
	}
	cp := *post
	s.items[post.ID] = &cp
	return post
}

// Len returns the number of stored posts.
func (s *PostRepoStub) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *PostRepoStub) Create(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++
	if s.CreateErr != nil {
		return s.CreateErr
	}
	for _, existing := range s.items {
		if existing.ImageURL == post.ImageURL {
			return gorm.ErrDuplicatedKey
		}
	}
	post.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	cp := *post
	s.items[post.ID] = &cp
	return nil
}

func (s *PostRepoStub) GetByID(_ context.Context, id uint) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	item, ok := s.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *PostRepoStub) GetByIDCached(ctx context.Context, id uint) (*models.Post, error) {
	return s.GetByID(ctx, id)
}

func (s *PostRepoStub) List(_ context.Context, limit, offset int) ([]*models.Post, error) {
	return s.filter(func(*models.Post) bool { return true }, limit, offset), nil
}

func (s *PostRepoStub) GetByUserID(_ context.Context, userID uint, limit, offset int) ([]*models.Post, error) {
	return s.filter(func(p *models.Post) bool { return p.UserID == userID }, limit, offset), nil
}

func (s *PostRepoStub) UpdateCaption(_ context.Context, id uint, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	item, ok := s.items[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	item.Caption = caption
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *PostRepoStub) Delete(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.items[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *PostRepoStub) ListImageRefs(_ context.Context) ([]repository.ImageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]repository.ImageRef, 0, len(s.items))
	for _, p := range s.items {
		refs = append(refs, repository.ImageRef{PostID: p.ID, UserID: p.UserID, ImageURL: p.ImageURL, CreatedAt: p.CreatedAt})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].PostID < refs[j].PostID })
	return refs, nil
}

func (s *PostRepoStub) filter(keep func(*models.Post) bool, limit, offset int) []*models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Post
	for _, p := range s.items {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// TinyPNG returns an encoded PNG of the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

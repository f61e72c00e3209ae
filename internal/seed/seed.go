// Package seed creates demo users and image posts for development.
// Posts go through PostService so seeded files and rows obey the same rules
// as uploaded ones.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strings"
	"unicode"

	"lenscape/internal/middleware"
	"lenscape/internal/models"
	"lenscape/internal/repository"
	"lenscape/internal/service"
	"lenscape/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

// Options configuration for the seeder
type Options struct {
	NumUsers     int
	PostsPerUser int
	// RandSeed makes output reproducible; 0 picks a random seed.
	RandSeed int64
}

// Result summarizes a seeding run.
type Result struct {
	Users []*models.User
	Posts []*models.Post
}

type Seeder struct {
	db       *gorm.DB
	postRepo repository.PostRepository
	users    *service.UserService
	posts    *service.PostService
}

func NewSeeder(db *gorm.DB, postRepo repository.PostRepository, users *service.UserService, posts *service.PostService) *Seeder {
	return &Seeder{db: db, postRepo: postRepo, users: users, posts: posts}
}

// Run creates opts.NumUsers accounts, each with opts.PostsPerUser image posts.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	faker := gofakeit.New(opts.RandSeed)
	res := &Result{}

	for i := 0; i < opts.NumUsers; i++ {
		username := fakeUsername(faker, i)
		user, err := s.users.Signup(ctx, service.SignupInput{
			Username: username,
			Email:    strings.ToLower(username) + "@example.com",
			Password: DefaultPassword,
			FullName: faker.Name(),
		})
		if err != nil {
			return res, fmt.Errorf("seeding user %s: %w", username, err)
		}
		res.Users = append(res.Users, user)

		for j := 0; j < opts.PostsPerUser; j++ {
			img, err := gradientPNG(faker, 64, 64)
			if err != nil {
				return res, err
			}
			post, err := s.posts.CreatePost(ctx, service.CreatePostInput{
				UserID:  user.ID,
				Caption: faker.Sentence(faker.Number(3, 12)),
				Upload: validation.UploadDescriptor{
					Size:        int64(len(img)),
					ContentType: "image/png",
					Filename:    fmt.Sprintf("seed-%d-%d.png", i, j),
				},
				Content: bytes.NewReader(img),
			})
			if err != nil {
				return res, fmt.Errorf("seeding post for %s: %w", username, err)
			}
			res.Posts = append(res.Posts, post)
		}
	}

	middleware.Logger.InfoContext(ctx, "seeding complete",
		slog.Int("users", len(res.Users)),
		slog.Int("posts", len(res.Posts)),
	)
	return res, nil
}

// ClearAll deletes every post through the deletion pipeline, then every user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	refs, err := s.postRepo.ListImageRefs(ctx)
	if err != nil {
		return fmt.Errorf("listing posts: %w", err)
	}
	for _, ref := range refs {
		err := s.posts.DeletePost(ctx, service.DeletePostInput{UserID: ref.UserID, PostID: ref.PostID})
		if err != nil && !models.HasCode(err, models.CodeNotFound) {
			return fmt.Errorf("deleting post %d: %w", ref.PostID, err)
		}
	}

	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("deleting users: %w", err)
	}

	middleware.Logger.InfoContext(ctx, "cleared seeded data", slog.Int("posts", len(refs)))
	return nil
}

// fakeUsername returns a name that passes validation.ValidateUsername and is
// unique per index.
func fakeUsername(faker *gofakeit.Faker, i int) string {
	var b strings.Builder
	for _, r := range faker.Username() {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
		if b.Len() >= 20 {
			break
		}
	}
	base := b.String()
	if base == "" {
		base = "user"
	}
	return fmt.Sprintf("%s_%d", base, i)
}

func gradientPNG(faker *gofakeit.Faker, w, h int) ([]byte, error) {
	from := color.RGBA{R: uint8(faker.Number(0, 255)), G: uint8(faker.Number(0, 255)), B: uint8(faker.Number(0, 255)), A: 255}
	to := color.RGBA{R: uint8(faker.Number(0, 255)), G: uint8(faker.Number(0, 255)), B: uint8(faker.Number(0, 255)), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := float64(x+y) / float64(w+h-2)
			img.Set(x, y, color.RGBA{
				R: lerp(from.R, to.R, t),
				G: lerp(from.G, to.G, t),
				B: lerp(from.B, to.B, t),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding seed image: %w", err)
	}
	return buf.Bytes(), nil
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

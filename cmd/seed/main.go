// Command seed fills the database and content store with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"lenscape/internal/bootstrap"
	"lenscape/internal/config"
	"lenscape/internal/repository"
	"lenscape/internal/seed"
	"lenscape/internal/service"
)

func main() {
	numUsers := flag.Int("users", 10, "Number of users to create")
	postsPerUser := flag.Int("posts", 5, "Number of posts per user")
	shouldClean := flag.Bool("clean", false, "Delete existing posts and users before seeding")
	randSeed := flag.Int64("seed", 0, "Random seed (0 = random)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	rt, err := bootstrap.InitRuntime(cfg, bootstrap.Options{WithRedis: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() { _ = rt.Close() }()

	postRepo := repository.NewPostRepository(rt.DB)
	s := seed.NewSeeder(rt.DB, postRepo,
		service.NewUserService(repository.NewUserRepository(rt.DB)),
		service.NewPostService(postRepo, rt.Store, cfg.MaxUploadBytes()),
	)

	ctx := context.Background()
	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	res, err := s.Run(ctx, seed.Options{
		NumUsers:     *numUsers,
		PostsPerUser: *postsPerUser,
		RandSeed:     *randSeed,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users and %d posts (password %q)", len(res.Users), len(res.Posts), seed.DefaultPassword)
}

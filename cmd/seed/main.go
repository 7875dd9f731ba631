// Package main seeds the database with unofficial submissions for local
// testing of the promotion workflow.
//
// The default data set is two users saving the same product and a third
// user saving another, which gives one promotion-eligible group and one
// group that needs an override:
//
//	go run ./cmd/seed
//	go run ./cmd/seed --users 5 --products 3  # random extra submissions
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/wishlistapp/catalog-server/internal/config"
	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/id"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/store"
	"github.com/wishlistapp/catalog-server/internal/store/sqlite"
)

var (
	extraUsers    = flag.Int("users", 0, "Number of extra random users")
	extraProducts = flag.Int("products", 0, "Number of extra random products")
)

type seedSubmission struct {
	id    string
	ident domain.Identifier
	user  string
	title string
	age   time.Duration
}

var baseline = []seedSubmission{
	{"sub-1", "B08NWQ8JRF", "alice", "Stainless Steel Water Bottle, 32 oz", 72 * time.Hour},
	{"sub-2", "B08NWQ8JRF", "bob", "Stainless Steel Water Bottle 32oz", 24 * time.Hour},
	{"sub-3", "B0B7CQWVX6", "carol", "Ceramic Pour Over Coffee Dripper", 48 * time.Hour},
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Opening database at: %s\n", cfg.Database.Path)

	s, err := sqlite.Open(cfg.Database.Path, nil)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	created := 0
	for _, sub := range baseline {
		ok, err := insert(ctx, s, sub, now)
		if err != nil {
			log.Fatalf("Failed to seed %s: %v", sub.id, err)
		}
		if ok {
			created++
		}
	}

	if *extraUsers > 0 && *extraProducts > 0 {
		n, err := seedRandom(ctx, s, *extraUsers, *extraProducts, now)
		if err != nil {
			log.Fatalf("Failed to seed random submissions: %v", err)
		}
		created += n
	}

	fmt.Printf("Created %d submissions\n", created)
	fmt.Println("List candidates with: curl -s localhost:8080/api/v1/admin/promotions")
}

// insert creates sub unless a submission with the same ID exists.
func insert(ctx context.Context, s *sqlite.Store, sub seedSubmission, now time.Time) (bool, error) {
	at := now.Add(-sub.age)
	err := s.CreateSubmission(ctx, &domain.UnofficialSubmission{
		Record:     domain.Record{ID: sub.id, CreatedAt: at, UpdatedAt: at, LastRefreshedAt: at},
		Identifier: sub.ident,
		UserID:     sub.user,
		SourceURL:  metadata.ProductURL(sub.ident),
		Metadata: &domain.ProductMetadata{
			Title:   sub.title,
			Quality: domain.QualityFull,
		},
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		fmt.Printf("  %s already present, skipping\n", sub.id)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	fmt.Printf("  %s: %s saved %s\n", sub.id, sub.user, sub.ident)
	return true, nil
}

func seedRandom(ctx context.Context, s *sqlite.Store, users, products int, now time.Time) (int, error) {
	idents := make([]domain.Identifier, products)
	for i := range idents {
		idents[i] = domain.Identifier(fmt.Sprintf("B0SEED%04d", i))
	}

	created := 0
	for u := range users {
		for _, ident := range idents {
			if rand.IntN(2) == 0 {
				continue
			}
			subID, err := id.Submission()
			if err != nil {
				return created, err
			}
			ok, err := insert(ctx, s, seedSubmission{
				id:    subID,
				ident: ident,
				user:  fmt.Sprintf("user-%02d", u),
				title: "Seed product " + string(ident),
				age:   time.Duration(rand.IntN(30*24)) * time.Hour,
			}, now)
			if err != nil {
				return created, err
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

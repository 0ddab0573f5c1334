package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/storefront-promo/internal/config"
	"github.com/noah-isme/storefront-promo/internal/promotion"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

func main() {
	var (
		file   = flag.String("file", "", "YAML fixture file; defaults to the bundled demo data")
		dryRun = flag.Bool("dry-run", false, "validate fixtures without writing")
	)
	flag.Parse()

	var src io.Reader = bytes.NewReader(defaultFixtures)
	if *file != "" {
		fh, err := os.Open(*file)
		if err != nil {
			log.Fatalf("open fixtures: %v", err)
		}
		defer fh.Close()
		src = fh
	}
	fx, err := parseFixtures(src)
	if err != nil {
		log.Fatal(err)
	}
	rows := make([]promotion.Row, 0, len(fx.Promotions))
	for _, p := range fx.Promotions {
		row, err := p.toRow()
		if err != nil {
			log.Fatal(err)
		}
		rows = append(rows, row)
	}
	if *dryRun {
		log.Printf("fixtures ok: %d categories, %d tags, %d products, %d promotions",
			len(fx.Categories), len(fx.Tags), len(fx.Products), len(rows))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	if err := seedLookups(ctx, pool, fx); err != nil {
		log.Fatal(err)
	}
	store := promotion.NewStore(pool)
	for _, row := range rows {
		action, err := upsert(ctx, store, row)
		if err != nil {
			log.Fatalf("seed promotion %q: %v", row.Name, err)
		}
		log.Printf("%s promotion %s (%s)", action, row.Name, row.ID)
	}
	log.Println("seeding completed")
}

func seedLookups(ctx context.Context, pool *pgxpool.Pool, fx fixtures) error {
	for _, c := range fx.Categories {
		if _, err := pool.Exec(ctx, `INSERT INTO categories (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, c.ID, c.Name); err != nil {
			return err
		}
	}
	for _, t := range fx.Tags {
		if _, err := pool.Exec(ctx, `INSERT INTO tags (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, t.ID, t.Name); err != nil {
			return err
		}
	}
	for _, p := range fx.Products {
		var category *string
		if p.CategoryID != "" {
			category = &p.CategoryID
		}
		if _, err := pool.Exec(ctx, `INSERT INTO products (id, name, category_id) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category_id = EXCLUDED.category_id`, p.ID, p.Name, category); err != nil {
			return err
		}
	}
	return nil
}

type rowStore interface {
	Get(ctx context.Context, id uuid.UUID) (promotion.Row, error)
	Create(ctx context.Context, r promotion.Row) (promotion.Row, error)
	Update(ctx context.Context, r promotion.Row) (promotion.Row, error)
}

func upsert(ctx context.Context, store rowStore, row promotion.Row) (string, error) {
	_, err := store.Get(ctx, row.ID)
	switch {
	case errors.Is(err, promotion.ErrNotFound):
		_, err = store.Create(ctx, row)
		return "created", err
	case err != nil:
		return "", err
	default:
		_, err = store.Update(ctx, row)
		return "updated", err
	}
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/RigelNana/media-service/models"
	"github.com/google/uuid"
)

func newRecord(kind models.Kind, title, category string, created time.Time) *models.MediaRecord {
	rec := &models.MediaRecord{
		Kind:        kind,
		Title:       title,
		Description: "Shot at " + title,
		Category:    category,
		Section:     kind.Spec().Sections[0],
		Year:        "2024",
		Asset: models.AssetRef{
			Provider: models.ProviderLocal,
			Key:      fmt.Sprintf("%s-%s.jpg", kind, uuid.NewString()),
			Format:   "jpeg",
		},
	}
	rec.CreatedAt = created
	return rec
}

func titles(recs []*models.MediaRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

// testMediaRepository runs the behaviour every MediaRepository must share.
func testMediaRepository(t *testing.T, repo MediaRepository) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	sunrise := newRecord(models.KindGallery, "Sunrise", "events", base)
	premiere := newRecord(models.KindGallery, "Premiere night", "movies", base.Add(time.Minute))
	gala := newRecord(models.KindGallery, "Gala 100%", "events", base.Add(2*time.Minute))
	project := newRecord(models.KindProject, "Sunrise documentary", "Regular", base.Add(3*time.Minute))

	for _, rec := range []*models.MediaRecord{sunrise, premiere, gala, project} {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create(%s): %v", rec.Title, err)
		}
		if rec.ID == uuid.Nil {
			t.Fatalf("Create(%s) did not assign an id", rec.Title)
		}
	}

	t.Run("GetByID is scoped to kind", func(t *testing.T) {
		got, err := repo.GetByID(ctx, models.KindGallery, sunrise.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Title != "Sunrise" || got.Asset.Key != sunrise.Asset.Key {
			t.Errorf("GetByID = %+v", got)
		}
		if _, err := repo.GetByID(ctx, models.KindProject, sunrise.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetByID wrong kind err = %v, want ErrNotFound", err)
		}
	})

	t.Run("List is newest first and paginated", func(t *testing.T) {
		items, total, err := repo.List(ctx, models.KindGallery, models.Filter{}, models.Page{Number: 1, Limit: 2})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		if got := titles(items); len(got) != 2 || got[0] != "Gala 100%" || got[1] != "Premiere night" {
			t.Errorf("page 1 = %v", got)
		}

		items, _, err = repo.List(ctx, models.KindGallery, models.Filter{}, models.Page{Number: 2, Limit: 2})
		if err != nil {
			t.Fatalf("List page 2: %v", err)
		}
		if got := titles(items); len(got) != 1 || got[0] != "Sunrise" {
			t.Errorf("page 2 = %v", got)
		}
	})

	t.Run("List filters", func(t *testing.T) {
		cases := []struct {
			name   string
			filter models.Filter
			want   int64
		}{
			{"category", models.Filter{Category: "events"}, 2},
			{"search is case-insensitive", models.Filter{Search: "SUNRISE"}, 1},
			{"search covers description", models.Filter{Search: "shot at prem"}, 1},
			{"search treats wildcards literally", models.Filter{Search: "0%"}, 1},
			{"underscore is literal", models.Filter{Search: "_"}, 0},
			{"year", models.Filter{Year: "2023"}, 0},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, total, err := repo.List(ctx, models.KindGallery, tc.filter, models.Page{Number: 1, Limit: 20})
				if err != nil {
					t.Fatalf("List: %v", err)
				}
				if total != tc.want {
					t.Errorf("total = %d, want %d", total, tc.want)
				}
			})
		}
	})

	t.Run("Update", func(t *testing.T) {
		rec, err := repo.GetByID(ctx, models.KindGallery, premiere.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		rec.Title = "Premiere (updated)"
		if err := repo.Update(ctx, rec); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, _ := repo.GetByID(ctx, models.KindGallery, premiere.ID)
		if got.Title != "Premiere (updated)" {
			t.Errorf("title after update = %q", got.Title)
		}

		ghost := newRecord(models.KindGallery, "Ghost", "other", base)
		ghost.ID = uuid.New()
		if err := repo.Update(ctx, ghost); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update unknown err = %v, want ErrNotFound", err)
		}
	})

	t.Run("Update rejects a stale copy", func(t *testing.T) {
		first, err := repo.GetByID(ctx, models.KindGallery, premiere.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		second, _ := repo.GetByID(ctx, models.KindGallery, premiere.ID)

		first.Description = "first writer"
		if err := repo.Update(ctx, first); err != nil {
			t.Fatalf("first Update: %v", err)
		}
		second.Description = "second writer"
		if err := repo.Update(ctx, second); !errors.Is(err, ErrStaleRecord) {
			t.Fatalf("stale Update err = %v, want ErrStaleRecord", err)
		}
		got, _ := repo.GetByID(ctx, models.KindGallery, premiere.ID)
		if got.Description != "first writer" {
			t.Errorf("description = %q, stale write was applied", got.Description)
		}
	})

	t.Run("asset keys are unique", func(t *testing.T) {
		dup := newRecord(models.KindGallery, "Copy", "other", base)
		dup.Asset.Key = sunrise.Asset.Key
		if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicateAsset) {
			t.Errorf("Create duplicate key err = %v, want ErrDuplicateAsset", err)
		}
	})

	t.Run("DeleteByIDs removes exactly the matching ids", func(t *testing.T) {
		n, err := repo.DeleteByIDs(ctx, models.KindGallery, []uuid.UUID{gala.ID, project.ID, uuid.New()})
		if err != nil {
			t.Fatalf("DeleteByIDs: %v", err)
		}
		if n != 1 {
			t.Errorf("deleted = %d, want 1", n)
		}
		if _, err := repo.GetByID(ctx, models.KindProject, project.ID); err != nil {
			t.Errorf("project removed by gallery bulk delete: %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, models.KindGallery, sunrise.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := repo.Delete(ctx, models.KindGallery, sunrise.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete err = %v, want ErrNotFound", err)
		}
		all, err := repo.FindAll(ctx, models.KindGallery, models.Filter{})
		if err != nil {
			t.Fatalf("FindAll: %v", err)
		}
		if got := titles(all); len(got) != 1 || got[0] != "Premiere (updated)" {
			t.Errorf("remaining = %v", got)
		}
	})

	if err := repo.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

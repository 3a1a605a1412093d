package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/RigelNana/media-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaRepository is the metadata store. Every call is scoped to one kind.
type MediaRepository interface {
	Create(ctx context.Context, rec *models.MediaRecord) error
	GetByID(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.MediaRecord, error)
	// Update fails with ErrStaleRecord when the stored record changed after
	// rec was read.
	Update(ctx context.Context, rec *models.MediaRecord) error
	Delete(ctx context.Context, kind models.Kind, id uuid.UUID) error
	// List returns one page, newest first, plus the total match count.
	List(ctx context.Context, kind models.Kind, f models.Filter, p models.Page) ([]*models.MediaRecord, int64, error)
	FindAll(ctx context.Context, kind models.Kind, f models.Filter) ([]*models.MediaRecord, error)
	// DeleteByIDs removes exactly the given ids and reports how many existed.
	DeleteByIDs(ctx context.Context, kind models.Kind, ids []uuid.UUID) (int64, error)
	Ping(ctx context.Context) error
}

type MediaRepositoryImpl struct {
	*BaseRepositoryImpl[models.MediaRecord]
}

func NewMediaRepository(db *gorm.DB) MediaRepository {
	return &MediaRepositoryImpl{
		BaseRepositoryImpl: NewBaseRepository[models.MediaRecord](db),
	}
}

func (r *MediaRepositoryImpl) Create(ctx context.Context, rec *models.MediaRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	return r.BaseRepositoryImpl.Create(ctx, rec)
}

func (r *MediaRepositoryImpl) GetByID(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.MediaRecord, error) {
	return r.first(ctx, byKind(kind), byID(id))
}

// Update only applies while the stored updated_at still equals rec.UpdatedAt.
func (r *MediaRepositoryImpl) Update(ctx context.Context, rec *models.MediaRecord) error {
	prev := rec.UpdatedAt
	rec.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	err := r.BaseRepositoryImpl.Update(ctx, rec, byKind(rec.Kind), func(db *gorm.DB) *gorm.DB {
		return db.Where("updated_at = ?", prev)
	})
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	// 区分记录不存在和并发修改
	if _, gerr := r.GetByID(ctx, rec.Kind, rec.ID); gerr != nil {
		return gerr
	}
	return ErrStaleRecord
}

func (r *MediaRepositoryImpl) Delete(ctx context.Context, kind models.Kind, id uuid.UUID) error {
	n, err := r.deleteWhere(ctx, byKind(kind), byID(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MediaRepositoryImpl) List(ctx context.Context, kind models.Kind, f models.Filter, p models.Page) ([]*models.MediaRecord, int64, error) {
	var records []*models.MediaRecord

	// 获取总数
	total, err := r.Count(ctx, byKind(kind), byFilter(f))
	if err != nil {
		return nil, 0, err
	}

	// 获取分页数据
	err = r.db.WithContext(ctx).
		Scopes(byKind(kind), byFilter(f)).
		Order("created_at DESC, id DESC").
		Limit(p.Limit).
		Offset(p.Offset()).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (r *MediaRepositoryImpl) FindAll(ctx context.Context, kind models.Kind, f models.Filter) ([]*models.MediaRecord, error) {
	var records []*models.MediaRecord
	err := r.db.WithContext(ctx).
		Scopes(byKind(kind), byFilter(f)).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *MediaRepositoryImpl) DeleteByIDs(ctx context.Context, kind models.Kind, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.deleteWhere(ctx, byKind(kind), func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", ids)
	})
}

func (r *MediaRepositoryImpl) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func byKind(kind models.Kind) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("kind = ?", kind)
	}
}

func byFilter(f models.Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Category != "" {
			db = db.Where("category = ?", f.Category)
		}
		if f.Section != "" {
			db = db.Where("section = ?", f.Section)
		}
		if f.Year != "" {
			db = db.Where("year = ?", f.Year)
		}
		if f.Search != "" {
			pattern := "%" + escapeLike(f.Search) + "%"
			db = db.Where("(title ILIKE ? OR description ILIKE ?)", pattern, pattern)
		}
		return db
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

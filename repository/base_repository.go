package repository

import (
	"context"
	"errors"

	"github.com/RigelNana/media-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateAsset = errors.New("asset key already referenced by another record")
	// ErrStaleRecord: the record changed since it was read.
	ErrStaleRecord = errors.New("record was modified concurrently")
)

type BaseRepository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T, scopes ...func(*gorm.DB) *gorm.DB) error
	Count(ctx context.Context, scopes ...func(*gorm.DB) *gorm.DB) (int64, error)
}

type BaseRepositoryImpl[T any] struct {
	db *gorm.DB
}

var _ BaseRepository[models.MediaRecord] = (*BaseRepositoryImpl[models.MediaRecord])(nil)

func NewBaseRepository[T any](db *gorm.DB) *BaseRepositoryImpl[T] {
	return &BaseRepositoryImpl[T]{
		db: db,
	}
}

func (r *BaseRepositoryImpl[T]) Create(ctx context.Context, entity *T) error {
	return translate(r.db.WithContext(ctx).Create(entity).Error)
}

// Update writes every column of entity, zero values included. Extra scopes
// narrow the match; no matching row yields ErrNotFound.
func (r *BaseRepositoryImpl[T]) Update(ctx context.Context, entity *T, scopes ...func(*gorm.DB) *gorm.DB) error {
	res := r.db.WithContext(ctx).Model(entity).Scopes(scopes...).Select("*").Updates(entity)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BaseRepositoryImpl[T]) Count(ctx context.Context, scopes ...func(*gorm.DB) *gorm.DB) (int64, error) {
	var count int64
	var entity T
	err := r.db.WithContext(ctx).Model(&entity).Scopes(scopes...).Count(&count).Error
	return count, err
}

func (r *BaseRepositoryImpl[T]) first(ctx context.Context, scopes ...func(*gorm.DB) *gorm.DB) (*T, error) {
	var entity T
	err := r.db.WithContext(ctx).Scopes(scopes...).First(&entity).Error
	if err != nil {
		return nil, translate(err)
	}
	return &entity, nil
}

func (r *BaseRepositoryImpl[T]) deleteWhere(ctx context.Context, scopes ...func(*gorm.DB) *gorm.DB) (int64, error) {
	var entity T
	res := r.db.WithContext(ctx).Scopes(scopes...).Delete(&entity)
	return res.RowsAffected, res.Error
}

func byID(id uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateAsset
	default:
		return err
	}
}

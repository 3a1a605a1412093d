package service

import (
	"context"
	"errors"
	"time"

	"github.com/RigelNana/media-service/events"
	"github.com/RigelNana/media-service/models"
	"github.com/RigelNana/media-service/pkg/metrics"
	"github.com/RigelNana/media-service/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreateInput is the metadata of a new record.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Section     string
	Year        string
	Completed   bool
}

// UpdateInput is a partial update. Nil fields keep their stored value.
type UpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	Section     *string
	Year        *string
	Completed   *bool
}

// DeleteResult confirms a single delete.
type DeleteResult struct {
	ID           uuid.UUID `json:"id"`
	AssetDeleted bool      `json:"asset_deleted"`
}

type MediaService interface {
	Create(ctx context.Context, kind models.Kind, in CreateInput, file *FileUpload) (*models.MediaRecord, error)
	Get(ctx context.Context, kind models.Kind, id string) (*models.MediaRecord, error)
	Update(ctx context.Context, kind models.Kind, id string, in UpdateInput, file *FileUpload) (*models.MediaRecord, error)
	Delete(ctx context.Context, kind models.Kind, id string) (*DeleteResult, error)
	DeleteAll(ctx context.Context, kind models.Kind, f models.Filter) (int64, error)
	List(ctx context.Context, kind models.Kind, f models.Filter, p models.Page) (*models.PageResult, error)
	// Cleanup removes records whose asset is gone from the store.
	Cleanup(ctx context.Context, kind models.Kind) (int64, error)
	Ping(ctx context.Context) error
}

type MediaServiceImpl struct {
	repo      repository.MediaRepository
	uploader  *Uploader
	publisher events.Publisher
	log       *logrus.Logger
	now       func() time.Time
}

func NewMediaService(repo repository.MediaRepository, uploader *Uploader, publisher events.Publisher, log *logrus.Logger) *MediaServiceImpl {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &MediaServiceImpl{
		repo:      repo,
		uploader:  uploader,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

func (s *MediaServiceImpl) Create(ctx context.Context, kind models.Kind, in CreateInput, file *FileUpload) (*models.MediaRecord, error) {
	rec := &models.MediaRecord{
		Kind:        kind,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Section:     in.Section,
		Year:        in.Year,
		Completed:   in.Completed,
	}
	now := s.now()
	models.NormalizeRecord(rec)
	models.ApplyDefaults(rec, now)
	if err := models.ValidateRecord(rec, now); err != nil {
		return nil, err
	}

	// 先存文件，再写数据库
	ref, err := s.uploader.Upload(ctx, kind, file)
	if err != nil {
		return nil, err
	}
	rec.Asset = ref

	if err := s.repo.Create(ctx, rec); err != nil {
		// 数据库写入失败，回滚已上传的文件
		s.compensate(kind, ref, err)
		return nil, &PersistenceError{Op: "create", Err: err}
	}

	metrics.RecordMutation(string(kind), "create", 1)
	s.publish(ctx, events.RecordEvent(events.MediaCreated, rec))
	return rec, nil
}

func (s *MediaServiceImpl) Get(ctx context.Context, kind models.Kind, id string) (*models.MediaRecord, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	rec, err := s.repo.GetByID(ctx, kind, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return rec, nil
}

// updateAttempts bounds how often Update re-reads a record that another
// writer changed underneath it.
const updateAttempts = 3

func (s *MediaServiceImpl) Update(ctx context.Context, kind models.Kind, id string, in UpdateInput, file *FileUpload) (*models.MediaRecord, error) {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.patch(rec, in); err != nil {
		return nil, err
	}

	var newAsset models.AssetRef
	if file != nil {
		newAsset, err = s.uploader.Upload(ctx, kind, file)
		if err != nil {
			return nil, err
		}
	}

	var oldAsset models.AssetRef
	for attempt := 1; ; attempt++ {
		oldAsset = rec.Asset
		if !newAsset.IsZero() {
			rec.Asset = newAsset
		}
		err = s.repo.Update(ctx, rec)
		if !errors.Is(err, repository.ErrStaleRecord) || attempt == updateAttempts {
			break
		}
		// 记录已被并发修改：重新读取并重放补丁
		s.log.WithFields(logrus.Fields{"kind": kind, "id": id, "attempt": attempt}).Debug("update raced, retrying")
		if rec, err = s.Get(ctx, kind, id); err == nil {
			err = s.patch(rec, in)
		}
		if err != nil {
			if !newAsset.IsZero() {
				s.compensate(kind, newAsset, err)
			}
			return nil, err
		}
	}

	if err != nil {
		// 新文件未被引用，删除；旧文件保持不变
		if !newAsset.IsZero() {
			s.compensate(kind, newAsset, err)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "update", Err: err}
	}

	// 新引用已持久化后才删除旧文件
	if !newAsset.IsZero() {
		if err := s.uploader.Discard(ctx, oldAsset); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"kind":      kind,
				"id":        rec.ID,
				"asset_key": oldAsset.Key,
			}).Warn("failed to delete replaced asset")
		}
	}

	metrics.RecordMutation(string(kind), "update", 1)
	s.publish(ctx, events.RecordEvent(events.MediaUpdated, rec))
	return rec, nil
}

// patch applies in to rec and revalidates the merged record.
func (s *MediaServiceImpl) patch(rec *models.MediaRecord, in UpdateInput) error {
	applyPatch(rec, in)
	now := s.now()
	models.NormalizeRecord(rec)
	models.ApplyDefaults(rec, now)
	return models.ValidateRecord(rec, now)
}

func applyPatch(rec *models.MediaRecord, in UpdateInput) {
	if in.Title != nil {
		rec.Title = *in.Title
	}
	if in.Description != nil {
		rec.Description = *in.Description
	}
	if in.Category != nil {
		rec.Category = *in.Category
	}
	if in.Section != nil {
		rec.Section = *in.Section
	}
	if in.Year != nil {
		rec.Year = *in.Year
	}
	if in.Completed != nil {
		rec.Completed = *in.Completed
	}
}

func (s *MediaServiceImpl) Delete(ctx context.Context, kind models.Kind, id string) (*DeleteResult, error) {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	assetDeleted := s.discardBestEffort(ctx, rec)

	if err := s.repo.Delete(ctx, kind, rec.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "delete", Err: err}
	}

	metrics.RecordMutation(string(kind), "delete", 1)
	s.publish(ctx, events.RecordEvent(events.MediaDeleted, rec))
	return &DeleteResult{ID: rec.ID, AssetDeleted: assetDeleted}, nil
}

func (s *MediaServiceImpl) DeleteAll(ctx context.Context, kind models.Kind, f models.Filter) (int64, error) {
	records, err := s.repo.FindAll(ctx, kind, f.Normalize())
	if err != nil {
		return 0, &PersistenceError{Op: "find", Err: err}
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, len(records))
	for _, rec := range records {
		s.discardBestEffort(ctx, rec)
		ids = append(ids, rec.ID)
	}

	n, err := s.repo.DeleteByIDs(ctx, kind, ids)
	if err != nil {
		return 0, &PersistenceError{Op: "delete", Err: err}
	}

	metrics.RecordMutation(string(kind), "delete", int(n))
	s.publish(ctx, events.CountEvent(events.MediaBulkDeleted, kind, n))
	return n, nil
}

func (s *MediaServiceImpl) List(ctx context.Context, kind models.Kind, f models.Filter, p models.Page) (*models.PageResult, error) {
	p = p.Normalize()
	items, total, err := s.repo.List(ctx, kind, f.Normalize(), p)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	if items == nil {
		items = []*models.MediaRecord{}
	}
	return models.NewPageResult(items, total, p), nil
}

func (s *MediaServiceImpl) Cleanup(ctx context.Context, kind models.Kind) (int64, error) {
	records, err := s.repo.FindAll(ctx, kind, models.Filter{})
	if err != nil {
		return 0, &PersistenceError{Op: "find", Err: err}
	}

	store := s.uploader.Store()
	var orphans []uuid.UUID
	for _, rec := range records {
		ok, err := store.Exists(ctx, rec.Asset)
		if err != nil {
			// 无法确认时保留记录
			s.log.WithError(err).WithField("asset_key", rec.Asset.Key).Warn("cleanup: asset check failed, keeping record")
			continue
		}
		if !ok {
			orphans = append(orphans, rec.ID)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	n, err := s.repo.DeleteByIDs(ctx, kind, orphans)
	if err != nil {
		return 0, &PersistenceError{Op: "delete", Err: err}
	}

	s.log.WithFields(logrus.Fields{"kind": kind, "removed": n}).Info("cleanup removed records with missing assets")
	metrics.RecordMutation(string(kind), "cleanup", int(n))
	s.publish(ctx, events.CountEvent(events.MediaCleaned, kind, n))
	return n, nil
}

func (s *MediaServiceImpl) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// compensate deletes an asset that no record references after a failed
// metadata write. Failures are logged; the caller reports the original error.
func (s *MediaServiceImpl) compensate(kind models.Kind, ref models.AssetRef, cause error) {
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.uploader.Discard(ctx, ref)
	metrics.RecordCompensation(string(kind), err)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"kind":      kind,
			"asset_key": ref.Key,
			"cause":     cause.Error(),
		}).Warn("failed to roll back uploaded asset")
	}
}

func (s *MediaServiceImpl) discardBestEffort(ctx context.Context, rec *models.MediaRecord) bool {
	if err := s.uploader.Discard(ctx, rec.Asset); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"kind":      rec.Kind,
			"id":        rec.ID,
			"asset_key": rec.Asset.Key,
		}).Warn("failed to delete asset, removing record anyway")
		return false
	}
	return true
}

func (s *MediaServiceImpl) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.WithError(err).WithField("event", e.Type).Warn("failed to publish event")
	}
}

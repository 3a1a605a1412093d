package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/RigelNana/media-service/events"
	"github.com/RigelNana/media-service/models"
	"github.com/RigelNana/media-service/repository"
	"github.com/RigelNana/media-service/storage"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// memStore is an in-memory storage.Store that counts calls.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	deletes   []string
	putErr    error
	deleteErr error
	existsErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Provider() string { return "memory" }

func (m *memStore) Put(_ context.Context, obj storage.Object) (models.AssetRef, error) {
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return models.AssetRef{}, fmt.Errorf("read: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return models.AssetRef{}, m.putErr
	}
	m.puts++
	key := storage.NewObjectName(obj.Prefix, obj.Ext())
	m.objects[key] = data
	return models.AssetRef{Provider: "memory", Key: key, URL: "mem://" + key, Format: obj.Format, Bytes: int64(len(data))}, nil
}

func (m *memStore) Delete(_ context.Context, ref models.AssetRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, ref.Key)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, ref.Key)
	return nil
}

func (m *memStore) Exists(_ context.Context, ref models.AssetRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.objects[ref.Key]
	return ok, nil
}

func (m *memStore) URLFor(ref models.AssetRef) string { return "mem://" + ref.Key }

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// flakyRepo fails writes on demand.
type flakyRepo struct {
	*repository.MemoryMediaRepository
	createErr error
	updateErr error
	// beforeUpdate runs once, ahead of the next Update.
	beforeUpdate func()
}

func (r *flakyRepo) Create(ctx context.Context, rec *models.MediaRecord) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MemoryMediaRepository.Create(ctx, rec)
}

func (r *flakyRepo) Update(ctx context.Context, rec *models.MediaRecord) error {
	if hook := r.beforeUpdate; hook != nil {
		r.beforeUpdate = nil
		hook()
	}
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.MemoryMediaRepository.Update(ctx, rec)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	svc   *MediaServiceImpl
	store *memStore
	repo  *flakyRepo
	pub   *recordingPublisher
	logs  *test.Hook
}

var errDBDown = errors.New("connection refused")

func newFixture() *fixture {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	store := newMemStore()
	repo := &flakyRepo{MemoryMediaRepository: repository.NewMemoryMediaRepository()}
	pub := &recordingPublisher{}
	uploader := NewUploader(store, 5<<20, []string{"jpeg", "jpg", "png", "gif", "webp"})
	svc := NewMediaService(repo, uploader, pub, log)
	return &fixture{svc: svc, store: store, repo: repo, pub: pub, logs: hook}
}

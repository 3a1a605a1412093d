package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RigelNana/media-service/events"
	"github.com/RigelNana/media-service/models"
	"github.com/RigelNana/media-service/repository"
	"github.com/RigelNana/media-service/service"
	"github.com/RigelNana/media-service/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
)

const maxUpload = 5 << 20

type testServer struct {
	engine *gin.Engine
	dir    string
	repo   *repository.MemoryMediaRepository
}

func newTestServer(t *testing.T, development bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, "http://localhost:5000")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	logger, _ := test.NewNullLogger()
	repo := repository.NewMemoryMediaRepository()
	uploader := service.NewUploader(store, maxUpload, []string{"jpeg", "jpg", "png", "gif", "webp"})
	svc := service.NewMediaService(repo, uploader, events.NoopPublisher{}, logger)
	opts := Options{
		MaxUploadBytes:  uploader.MaxBytes(),
		TooLargeMessage: uploader.TooLargeMessage(),
		Development:     development,
	}

	r := gin.New()
	for _, route := range []struct {
		prefix string
		kind   models.Kind
	}{{"/api/gallery", models.KindGallery}, {"/api/projects", models.KindProject}} {
		h := NewMediaHandler(route.kind, svc, opts, logger)
		g := r.Group(route.prefix)
		g.GET("", h.List)
		g.GET("/:id", h.Get)
		g.POST("", h.Create)
		g.PUT("/:id", h.Update)
		g.DELETE("/:id", h.Delete)
		g.DELETE("", h.DeleteAll)
		g.POST("/cleanup", h.Cleanup)
	}
	r.NoRoute(NotFound)
	return &testServer{engine: r, dir: dir, repo: repo}
}

// jpegOfSize returns a decodable JPEG padded with trailing bytes to size.
func jpegOfSize(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() < size {
		buf.Write(make([]byte, size-buf.Len()))
	}
	return buf.Bytes()
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, file *upload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("field %s: %v", k, err)
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, file.filename))
		h.Set("Content-Type", file.contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(file.data) //nolint:errcheck
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func (s *testServer) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, path, w.Body.String(), err)
	}
	return w, out
}

func (s *testServer) create(t *testing.T, prefix string, fields map[string]string, file *upload) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, ct := multipartBody(t, fields, file)
	return s.do(t, http.MethodPost, prefix, body, ct)
}

func jpegUpload(t *testing.T, size int) *upload {
	return &upload{filename: "photo.jpg", contentType: "image/jpeg", data: jpegOfSize(t, size)}
}

func TestGalleryUploadLifecycle(t *testing.T) {
	s := newTestServer(t, false)

	w, body := s.create(t, "/api/gallery", map[string]string{
		"title":    "Launch",
		"category": "events",
		"year":     "2024",
	}, jpegUpload(t, 2<<20))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %v", w.Code, body)
	}
	if body["message"] != "Gallery item created successfully" {
		t.Errorf("message = %v", body["message"])
	}
	data := body["data"].(map[string]any)
	id := data["id"].(string)
	img := data["image"].(map[string]any)
	key := img["key"].(string)
	if !strings.HasPrefix(key, "gallery-") || !strings.HasSuffix(key, ".jpg") {
		t.Errorf("key = %q", key)
	}
	if data["image_url"] != "http://localhost:5000/uploads/"+key {
		t.Errorf("image_url = %v", data["image_url"])
	}
	if img["width"].(float64) != 32 || img["height"].(float64) != 24 {
		t.Errorf("dimensions = %vx%v", img["width"], img["height"])
	}
	if _, ok := data["completed"]; ok {
		t.Errorf("gallery items must not expose completed")
	}
	if data["category"] != "events" || data["year"] != "2024" || data["section"] != "gallery" {
		t.Errorf("category %v year %v section %v", data["category"], data["year"], data["section"])
	}
	assetPath := filepath.Join(s.dir, key)
	if _, err := os.Stat(assetPath); err != nil {
		t.Fatalf("asset not on disk: %v", err)
	}

	// oversize upload
	w, body = s.create(t, "/api/gallery", map[string]string{
		"title":    "Too big",
		"category": "events",
	}, jpegUpload(t, 6<<20))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversize: status %d", w.Code)
	}
	if msg := body["message"].(string); !strings.Contains(msg, "File size too large") {
		t.Errorf("oversize message = %q", msg)
	}

	// invalid category
	w, body = s.create(t, "/api/gallery", map[string]string{
		"title":    "Bad category",
		"category": "invalid",
	}, jpegUpload(t, 1024))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid category: status %d", w.Code)
	}
	if msg := body["message"].(string); !strings.Contains(msg, "events, movies, celebrations, awards, behind-the-scenes, other") {
		t.Errorf("category message = %q", msg)
	}
	if _, ok := body["error"]; ok {
		t.Errorf("error detail leaked outside development")
	}

	w, body = s.do(t, http.MethodGet, "/api/gallery/"+id, nil, "")
	if w.Code != http.StatusOK || body["data"].(map[string]any)["title"] != "Launch" {
		t.Fatalf("get: status %d body %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodDelete, "/api/gallery/"+id, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status %d body %v", w.Code, body)
	}
	res := body["data"].(map[string]any)
	if res["id"] != id || res["asset_deleted"] != true {
		t.Errorf("delete result = %v", res)
	}

	w, body = s.do(t, http.MethodGet, "/api/gallery", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	if body["total"].(float64) != 0 || len(body["data"].([]any)) != 0 {
		t.Errorf("list after delete = %v", body)
	}
	if _, err := os.Stat(assetPath); !os.IsNotExist(err) {
		t.Errorf("asset still on disk: %v", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected uploads left %d files behind", len(entries))
	}
}

func TestGetUnknownAndMalformedID(t *testing.T) {
	s := newTestServer(t, false)

	for _, id := range []string{"9b2f6f0e-6f3c-4f59-9d4a-2b5c1c7f0a11", "not-a-uuid"} {
		w, body := s.do(t, http.MethodGet, "/api/projects/"+id, nil, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: status %d", id, w.Code)
		}
		if body["message"] != "Project not found" || body["success"] != false {
			t.Errorf("%s: body %v", id, body)
		}
	}
}

func TestProjectCreateAndUpdate(t *testing.T) {
	s := newTestServer(t, true)

	w, body := s.create(t, "/api/projects", map[string]string{
		"title":     "  Short film  ",
		"completed": "true",
		"year":      "2023",
	}, jpegUpload(t, 2048))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %v", w.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["title"] != "Short film" || data["category"] != "Regular" || data["section"] != "Banner" || data["completed"] != true {
		t.Fatalf("create defaults = %v", data)
	}
	id := data["id"].(string)
	oldKey := data["image"].(map[string]any)["key"].(string)

	// blank fields mean "unchanged"
	fields, ct := multipartBody(t, map[string]string{"title": "", "category": "Featured"}, nil)
	w, body = s.do(t, http.MethodPut, "/api/projects/"+id, fields, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d body %v", w.Code, body)
	}
	data = body["data"].(map[string]any)
	if data["title"] != "Short film" || data["category"] != "Featured" {
		t.Errorf("update = %v", data)
	}

	// replacing the image removes the old file
	fields, ct = multipartBody(t, nil, jpegUpload(t, 4096))
	w, body = s.do(t, http.MethodPut, "/api/projects/"+id, fields, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("replace image: status %d body %v", w.Code, body)
	}
	newKey := body["data"].(map[string]any)["image"].(map[string]any)["key"].(string)
	if newKey == oldKey {
		t.Fatal("image key unchanged after replacement")
	}
	if _, err := os.Stat(filepath.Join(s.dir, oldKey)); !os.IsNotExist(err) {
		t.Errorf("old asset still on disk: %v", err)
	}

	fields, ct = multipartBody(t, map[string]string{"completed": "maybe"}, nil)
	w, body = s.do(t, http.MethodPut, "/api/projects/"+id, fields, ct)
	if w.Code != http.StatusBadRequest || body["message"] != "Completed must be true or false" {
		t.Errorf("bad completed: status %d body %v", w.Code, body)
	}
	if _, ok := body["error"]; !ok {
		t.Errorf("development responses should carry error detail")
	}
}

func TestCreateRejectsMissingOrWrongImage(t *testing.T) {
	s := newTestServer(t, false)

	w, body := s.create(t, "/api/gallery", map[string]string{"title": "x", "category": "movies"}, nil)
	if w.Code != http.StatusBadRequest || body["message"] != "Image is required" {
		t.Errorf("missing image: status %d body %v", w.Code, body)
	}

	w, body = s.create(t, "/api/gallery", map[string]string{"title": "x", "category": "movies"},
		&upload{filename: "notes.txt", contentType: "text/plain", data: []byte("hello")})
	if w.Code != http.StatusBadRequest || !strings.HasPrefix(body["message"].(string), "Only image files") {
		t.Errorf("wrong type: status %d body %v", w.Code, body)
	}
}

func TestListFilterAndDeleteAll(t *testing.T) {
	s := newTestServer(t, false)

	for i, category := range []string{"events", "events", "awards"} {
		w, body := s.create(t, "/api/gallery", map[string]string{
			"title":    fmt.Sprintf("Item %d", i),
			"category": category,
		}, jpegUpload(t, 1024))
		if w.Code != http.StatusCreated {
			t.Fatalf("seed %d: status %d body %v", i, w.Code, body)
		}
	}

	w, body := s.do(t, http.MethodGet, "/api/gallery?category=events&limit=1&page=2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	if body["total"].(float64) != 2 || body["pages"].(float64) != 2 || body["page"].(float64) != 2 || len(body["data"].([]any)) != 1 {
		t.Errorf("filtered page = %v", body)
	}
	// newest first: page 2 of size 1 holds the oldest events item
	if got := body["data"].([]any)[0].(map[string]any)["title"]; got != "Item 0" {
		t.Errorf("page 2 title = %v", got)
	}

	w, body = s.do(t, http.MethodDelete, "/api/gallery?category=%20events%20", nil, "")
	if w.Code != http.StatusOK || body["deleted"].(float64) != 2 {
		t.Fatalf("delete all: status %d body %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodGet, "/api/gallery", nil, "")
	if body["total"].(float64) != 1 {
		t.Errorf("remaining = %v", body["total"])
	}
	entries, _ := os.ReadDir(s.dir)
	if len(entries) != 1 {
		t.Errorf("files on disk = %d, want 1", len(entries))
	}
}

func TestCleanupRemovesRecordsWithMissingFiles(t *testing.T) {
	s := newTestServer(t, false)

	var keys []string
	for i := 0; i < 2; i++ {
		_, body := s.create(t, "/api/gallery", map[string]string{"title": "kept", "category": "other"}, jpegUpload(t, 1024))
		keys = append(keys, body["data"].(map[string]any)["image"].(map[string]any)["key"].(string))
	}
	if err := os.Remove(filepath.Join(s.dir, keys[0])); err != nil {
		t.Fatal(err)
	}

	w, body := s.do(t, http.MethodPost, "/api/gallery/cleanup", nil, "")
	if w.Code != http.StatusOK || body["removed"].(float64) != 1 {
		t.Fatalf("cleanup: status %d body %v", w.Code, body)
	}
	_, body = s.do(t, http.MethodGet, "/api/gallery", nil, "")
	if body["total"].(float64) != 1 {
		t.Errorf("total after cleanup = %v", body["total"])
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, false)
	w, body := s.do(t, http.MethodGet, "/api/nope", nil, "")
	if w.Code != http.StatusNotFound || body["path"] != "/api/nope" || body["message"] != "Route not found" {
		t.Errorf("status %d body %v", w.Code, body)
	}
}

func TestListHugePageReturnsEmptyPage(t *testing.T) {
	s := newTestServer(t, false)
	if w, body := s.create(t, "/api/gallery", map[string]string{"title": "Only", "category": "events"}, jpegUpload(t, 1024)); w.Code != http.StatusCreated {
		t.Fatalf("seed: status %d body %v", w.Code, body)
	}

	w, body := s.do(t, http.MethodGet, "/api/gallery?page=9223372036854775807&limit=20", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %v", w.Code, body)
	}
	if len(body["data"].([]any)) != 0 || body["total"].(float64) != 1 {
		t.Errorf("huge page = %v", body)
	}
}

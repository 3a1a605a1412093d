package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RigelNana/media-service/models"
	"github.com/RigelNana/media-service/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options shared by every media handler.
type Options struct {
	MaxUploadBytes  int64
	TooLargeMessage string
	Development     bool
}

// MediaHandler serves the CRUD routes of one kind.
type MediaHandler struct {
	kind   models.Kind
	svc    service.MediaService
	opts   Options
	logger *logrus.Logger
}

func NewMediaHandler(kind models.Kind, svc service.MediaService, opts Options, logger *logrus.Logger) *MediaHandler {
	return &MediaHandler{kind: kind, svc: svc, opts: opts, logger: logger}
}

// mediaView is the JSON shape of a record.
type mediaView struct {
	ID          uuid.UUID       `json:"id"`
	Kind        models.Kind     `json:"kind"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Section     string          `json:"section"`
	Year        string          `json:"year"`
	Completed   *bool           `json:"completed,omitempty"`
	ImageURL    string          `json:"image_url"`
	Image       models.AssetRef `json:"image"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (h *MediaHandler) view(rec *models.MediaRecord) mediaView {
	v := mediaView{
		ID:          rec.ID,
		Kind:        rec.Kind,
		Title:       rec.Title,
		Description: rec.Description,
		Category:    rec.Category,
		Section:     rec.Section,
		Year:        rec.Year,
		ImageURL:    rec.Asset.URL,
		Image:       rec.Asset,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.Kind.Spec().HasCompleted {
		completed := rec.Completed
		v.Completed = &completed
	}
	return v
}

func (h *MediaHandler) views(recs []*models.MediaRecord) []mediaView {
	out := make([]mediaView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, h.view(rec))
	}
	return out
}

func filterFromQuery(c *gin.Context) models.Filter {
	return models.Filter{
		Category: c.Query("category"),
		Section:  c.Query("section"),
		Year:     c.Query("year"),
		Search:   c.Query("search"),
	}.Normalize()
}

// List 分页查询
// GET /api/<kind>?page&limit&category&section&year&search
func (h *MediaHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(strings.TrimSpace(c.Query("page")))
	limit, _ := strconv.Atoi(strings.TrimSpace(c.Query("limit")))

	res, err := h.svc.List(c.Request.Context(), h.kind, filterFromQuery(c), models.Page{Number: page, Limit: limit})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.views(res.Items),
		"total":   res.Total,
		"pages":   res.Pages,
		"page":    res.Page,
		"limit":   res.Limit,
	})
}

// Get 获取单条记录
// GET /api/<kind>/:id
func (h *MediaHandler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), h.kind, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.view(rec)})
}

// Create 上传图片并创建记录
// POST /api/<kind>
func (h *MediaHandler) Create(c *gin.Context) {
	form, err := h.parseForm(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	file, closeFile, err := openUpload(form)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer closeFile()

	in := service.CreateInput{
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
		Category:    formValue(form, "category"),
		Section:     formValue(form, "section"),
		Year:        formValue(form, "year"),
	}
	if completed, err := h.completed(form); err != nil {
		h.fail(c, err)
		return
	} else if completed != nil {
		in.Completed = *completed
	}

	rec, err := h.svc.Create(c.Request.Context(), h.kind, in, file)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": h.kind.Spec().DisplayName + " created successfully",
		"data":    h.view(rec),
	})
}

// Update 部分更新，可选替换图片
// PUT /api/<kind>/:id
func (h *MediaHandler) Update(c *gin.Context) {
	form, err := h.parseForm(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	file, closeFile, err := openUpload(form)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer closeFile()

	in := service.UpdateInput{
		Title:       optionalValue(form, "title"),
		Description: optionalValue(form, "description"),
		Category:    optionalValue(form, "category"),
		Section:     optionalValue(form, "section"),
		Year:        optionalValue(form, "year"),
	}
	if in.Completed, err = h.completed(form); err != nil {
		h.fail(c, err)
		return
	}

	rec, err := h.svc.Update(c.Request.Context(), h.kind, c.Param("id"), in, file)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": h.kind.Spec().DisplayName + " updated successfully",
		"data":    h.view(rec),
	})
}

// Delete 删除单条记录及其图片
// DELETE /api/<kind>/:id
func (h *MediaHandler) Delete(c *gin.Context) {
	res, err := h.svc.Delete(c.Request.Context(), h.kind, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": h.kind.Spec().DisplayName + " deleted successfully",
		"data":    res,
	})
}

// DeleteAll 按条件批量删除
// DELETE /api/<kind>?category&section&year&search
func (h *MediaHandler) DeleteAll(c *gin.Context) {
	n, err := h.svc.DeleteAll(c.Request.Context(), h.kind, filterFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Deleted %d %s records", n, h.kind),
		"deleted": n,
	})
}

// Cleanup 清理图片已丢失的记录
// POST /api/<kind>/cleanup
func (h *MediaHandler) Cleanup(c *gin.Context) {
	n, err := h.svc.Cleanup(c.Request.Context(), h.kind)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Removed %d %s records with missing images", n, h.kind),
		"removed": n,
	})
}

// parseForm reads a multipart body capped slightly above the upload limit.
// A urlencoded body yields a form without files.
func (h *MediaHandler) parseForm(c *gin.Context) (*multipart.Form, error) {
	limit := h.opts.MaxUploadBytes + 1<<20
	if c.Request.ContentLength > limit {
		return nil, models.NewValidationError(h.opts.TooLargeMessage)
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	err := c.Request.ParseMultipartForm(32 << 20)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return c.Request.MultipartForm, nil
	case errors.Is(err, http.ErrNotMultipart):
		return &multipart.Form{Value: c.Request.PostForm}, nil
	case errors.As(err, &tooLarge):
		return nil, models.NewValidationError(h.opts.TooLargeMessage)
	default:
		return nil, models.NewValidationError("Invalid form data")
	}
}

func (h *MediaHandler) completed(form *multipart.Form) (*bool, error) {
	if !h.kind.Spec().HasCompleted {
		return nil, nil
	}
	raw := optionalValue(form, "completed")
	if raw == nil {
		return nil, nil
	}
	v, err := strconv.ParseBool(*raw)
	if err != nil {
		return nil, models.NewValidationError("Completed must be true or false")
	}
	return &v, nil
}

func openUpload(form *multipart.Form) (*service.FileUpload, func(), error) {
	noop := func() {}
	headers := form.File["image"]
	if len(headers) == 0 {
		return nil, noop, nil
	}
	fh := headers[0]
	f, err := fh.Open()
	if err != nil {
		return nil, noop, models.NewValidationError("Could not read uploaded image")
	}
	return &service.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, func() { f.Close() }, nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

// optionalValue treats a missing or blank field as not provided.
func optionalValue(form *multipart.Form, key string) *string {
	v := formValue(form, key)
	if v == "" {
		return nil
	}
	return &v
}

func (h *MediaHandler) fail(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "Server error"

	var verr *models.ValidationError
	var serr *service.StorageError
	var perr *service.PersistenceError
	switch {
	case errors.As(err, &verr):
		status, msg = http.StatusBadRequest, verr.Error()
	case errors.Is(err, service.ErrNotFound):
		status, msg = http.StatusNotFound, h.kind.Spec().DisplayName+" not found"
	case errors.As(err, &serr):
		msg = "Failed to store image"
	case errors.As(err, &perr):
		msg = "Failed to save " + strings.ToLower(h.kind.Spec().DisplayName)
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.logger.WithError(err).WithFields(logrus.Fields{
			"kind":       h.kind,
			"request_id": c.GetString("request_id"),
		}).Error(msg)
	}

	body := gin.H{"success": false, "message": msg}
	if h.opts.Development {
		body["error"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

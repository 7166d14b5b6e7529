package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/331872554/vip/internal/apperr"
	"github.com/331872554/vip/internal/blob"
	"github.com/331872554/vip/internal/catalog"
	"github.com/331872554/vip/internal/ingest"
	"github.com/331872554/vip/internal/meta"
)

// UploadField is the multipart field carrying video files.
const UploadField = "video"

type uploadResponse struct {
	Message  string             `json:"message"`
	Count    int                `json:"count"`
	Videos   []meta.VideoRecord `json:"videos"`
	Rejected []ingest.Rejection `json:"rejected,omitempty"`
}

type scanResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	TotalVideos int    `json:"totalVideos"`
	Added       int    `json:"added"`
	Pruned      int    `json:"pruned"`
}

func (h *Handler) upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.TooLarge(fmt.Sprintf("request body exceeds maximum %d bytes", tooBig.Limit))
		}
		return apperr.Validation("expected a multipart/form-data body")
	}
	defer form.RemoveAll()

	res, err := h.pipeline.Ingest(c.Request().Context(), ingest.Request{
		Files:       form.File[UploadField],
		Title:       firstValue(form.Value, "title"),
		Description: firstValue(form.Value, "description"),
		Category:    firstValue(form.Value, "category"),
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation && len(res.Rejected) > 0 {
			return c.JSON(http.StatusBadRequest, map[string]any{
				"error":    apperr.Message(err),
				"rejected": res.Rejected,
			})
		}
		return err
	}

	return c.JSON(http.StatusOK, uploadResponse{
		Message:  fmt.Sprintf("uploaded %d video(s)", res.Count),
		Count:    res.Count,
		Videos:   res.Videos,
		Rejected: res.Rejected,
	})
}

func (h *Handler) listVideos(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.List())
}

func (h *Handler) getVideo(c echo.Context) error {
	rec, err := h.catalog.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) updateVideo(c echo.Context) error {
	var p catalog.Patch
	if err := c.Bind(&p); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	rec, err := h.catalog.Update(c.Param("id"), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteVideo(c echo.Context) error {
	rec, err := h.catalog.DeleteByID(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "video deleted",
		"id":      rec.ID,
	})
}

func (h *Handler) scanVideos(c echo.Context) error {
	res, err := h.catalog.Reconcile()
	if errors.Is(err, blob.ErrDirMissing) {
		return c.JSON(http.StatusNotFound, map[string]any{
			"success": false,
			"message": "upload directory does not exist",
		})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, scanResponse{
		Success:     true,
		Message:     fmt.Sprintf("scan complete: %d files, %d added, %d pruned", res.Scanned, res.Added, res.Pruned),
		TotalVideos: res.Total,
		Added:       res.Added,
		Pruned:      res.Pruned,
	})
}

func firstValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

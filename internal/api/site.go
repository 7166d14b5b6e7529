package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"

	"github.com/labstack/echo/v4"

	"github.com/331872554/vip/internal/apperr"
	"github.com/331872554/vip/internal/blob"
	"github.com/331872554/vip/internal/fsutil"
)

func (h *Handler) health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) test(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "API is working"})
}

func (h *Handler) getContent(c echo.Context) error {
	return c.JSON(http.StatusOK, h.content.Get())
}

func (h *Handler) updateContent(c echo.Context) error {
	var updates map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&updates); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	doc, err := h.content.Merge(updates)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"content": doc,
	})
}

type diagnosticsFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

type diagnosticsResponse struct {
	Server struct {
		GoVersion        string `json:"goVersion"`
		Platform         string `json:"platform"`
		WorkingDirectory string `json:"workingDirectory"`
	} `json:"serverInfo"`
	Uploads struct {
		Path   string            `json:"path"`
		Exists bool              `json:"exists"`
		Files  []diagnosticsFile `json:"files"`
	} `json:"uploadDirectory"`
	Catalog struct {
		Path       string `json:"path"`
		Exists     bool   `json:"exists"`
		VideoCount int    `json:"videoCount"`
	} `json:"videosFile"`
}

func (h *Handler) diagnostics(c echo.Context) error {
	var out diagnosticsResponse
	out.Server.GoVersion = runtime.Version()
	out.Server.Platform = runtime.GOOS + "/" + runtime.GOARCH
	if wd, err := os.Getwd(); err == nil {
		out.Server.WorkingDirectory = wd
	}

	out.Uploads.Path = h.blobs.Dir()
	out.Uploads.Files = []diagnosticsFile{}
	files, err := h.blobs.List()
	switch {
	case err == nil:
		out.Uploads.Exists = true
		for _, f := range files {
			if blob.IsVideoFile(f.Name) {
				out.Uploads.Files = append(out.Uploads.Files, diagnosticsFile{Name: f.Name, Size: f.Size, URL: f.URL})
			}
		}
	case !errors.Is(err, blob.ErrDirMissing):
		return err
	}

	out.Catalog.Path = h.catalogPath
	out.Catalog.Exists = fsutil.Exists(h.catalogPath)
	out.Catalog.VideoCount = h.catalog.Len()
	return c.JSON(http.StatusOK, out)
}

// Package ingest turns a multipart upload into stored files and catalog
// records. Files that fail validation are skipped and reported; the rest of
// the batch is still committed.
package ingest

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/331872554/vip/internal/apperr"
	"github.com/331872554/vip/internal/blob"
	"github.com/331872554/vip/internal/id"
	"github.com/331872554/vip/internal/meta"
	"github.com/331872554/vip/internal/metrics"
)

type Blobs interface {
	IsVideoType(contentType string) bool
	Store(ctx context.Context, r io.Reader, originalName, contentType string) (blob.Object, error)
	Verify(obj blob.Object) error
	Remove(name string) error
}

type Catalog interface {
	Append(records ...meta.VideoRecord) error
	DefaultCategory() meta.Category
}

var _ Blobs = (*blob.Store)(nil)

type Limits struct {
	MaxFiles     int
	MaxFileBytes int64
	// Workers bounds how many files of one batch are written concurrently.
	Workers int
}

type Request struct {
	Files       []*multipart.FileHeader
	Title       string
	Description string
	Category    string
}

type Rejection struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

type Result struct {
	Count    int                `json:"count"`
	Videos   []meta.VideoRecord `json:"videos"`
	Rejected []Rejection        `json:"rejected,omitempty"`
}

type Pipeline struct {
	blobs   Blobs
	catalog Catalog
	limits  Limits
	log     *logrus.Entry
	now     func() time.Time
}

func New(blobs Blobs, catalog Catalog, limits Limits, log *logrus.Entry) *Pipeline {
	if limits.Workers <= 0 {
		limits.Workers = 1
	}
	return &Pipeline{
		blobs:   blobs,
		catalog: catalog,
		limits:  limits,
		log:     log.WithField("component", "ingest"),
		now:     time.Now,
	}
}

func (p *Pipeline) Limits() Limits { return p.limits }

// Ingest validates the batch, writes accepted files in parallel, verifies
// them on disk and appends one record per file with a single catalog save.
// A storage failure on any file fails the whole request and removes the
// files this request already wrote.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (Result, error) {
	if len(req.Files) == 0 {
		return Result{}, apperr.Validation("no files uploaded")
	}
	if p.limits.MaxFiles > 0 && len(req.Files) > p.limits.MaxFiles {
		return Result{}, apperr.Validation(fmt.Sprintf("too many files: %d, max %d", len(req.Files), p.limits.MaxFiles))
	}
	category := p.catalog.DefaultCategory()
	if req.Category != "" {
		category = meta.Category(req.Category)
		if !category.Valid() {
			return Result{}, apperr.Validation(fmt.Sprintf("unknown category %q", req.Category))
		}
	}

	var (
		accepted []*multipart.FileHeader
		res      = Result{Videos: []meta.VideoRecord{}}
	)
	for _, fh := range req.Files {
		if reason := p.check(fh); reason != "" {
			res.Rejected = append(res.Rejected, Rejection{File: fh.Filename, Reason: reason})
			metrics.UploadFiles.WithLabelValues("rejected").Inc()
			p.log.WithFields(logrus.Fields{"file": fh.Filename, "reason": reason}).Warn("upload file rejected")
			continue
		}
		accepted = append(accepted, fh)
	}
	if len(accepted) == 0 {
		return res, apperr.Validation("no valid video files: " + res.Rejected[0].Reason)
	}

	objs, err := p.write(ctx, accepted)
	if err != nil {
		return res, err
	}

	uploadedAt := meta.NewTimestamp(p.now())
	for _, obj := range objs {
		title := req.Title
		if title == "" {
			title = obj.Name
		}
		res.Videos = append(res.Videos, meta.VideoRecord{
			ID:          id.New(),
			Title:       title,
			Description: req.Description,
			Category:    category,
			VideoURL:    obj.URL,
			UploadDate:  uploadedAt,
		})
	}
	if err := p.catalog.Append(res.Videos...); err != nil {
		p.cleanup(objs)
		return Result{Videos: []meta.VideoRecord{}, Rejected: res.Rejected}, err
	}

	var written int64
	for _, obj := range objs {
		written += obj.Size
	}
	metrics.UploadFiles.WithLabelValues("accepted").Add(float64(len(objs)))
	metrics.UploadBytes.Add(float64(written))

	res.Count = len(res.Videos)
	p.log.WithFields(logrus.Fields{"count": res.Count, "rejected": len(res.Rejected), "bytes": written}).Info("upload ingested")
	return res, nil
}

// check returns why fh cannot be accepted, or "" when it can.
func (p *Pipeline) check(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); !p.blobs.IsVideoType(ct) {
		return fmt.Sprintf("only video files are allowed (got %q)", ct)
	}
	if p.limits.MaxFileBytes > 0 && fh.Size > p.limits.MaxFileBytes {
		return fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", fh.Size, p.limits.MaxFileBytes)
	}
	return ""
}

// write stores and verifies files concurrently, preserving request order in
// the returned slice.
func (p *Pipeline) write(ctx context.Context, files []*multipart.FileHeader) ([]blob.Object, error) {
	objs := make([]blob.Object, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limits.Workers)

	for i, fh := range files {
		g.Go(func() error {
			src, err := fh.Open()
			if err != nil {
				return apperr.Storage("cannot open uploaded file", err)
			}
			defer src.Close()

			obj, err := p.blobs.Store(gctx, src, fh.Filename, fh.Header.Get("Content-Type"))
			if err != nil {
				return err
			}
			objs[i] = obj
			return p.blobs.Verify(obj)
		})
	}

	if err := g.Wait(); err != nil {
		p.log.WithError(err).Error("upload batch failed, removing written files")
		p.cleanup(objs)
		return nil, err
	}
	return objs, nil
}

func (p *Pipeline) cleanup(objs []blob.Object) {
	for _, obj := range objs {
		if obj.Name == "" {
			continue
		}
		if err := p.blobs.Remove(obj.Name); err != nil {
			p.log.WithError(err).WithField("file", obj.Name).Warn("remove file after failed upload")
		}
	}
}

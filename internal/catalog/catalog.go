// Package catalog owns the in-memory video catalog. Every mutation is
// written through to the backing meta.Store while the catalog lock is held,
// so the cache and the document never diverge and saves are serialized.
package catalog

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/331872554/vip/internal/apperr"
	"github.com/331872554/vip/internal/blob"
	"github.com/331872554/vip/internal/fsutil"
	"github.com/331872554/vip/internal/meta"
	"github.com/331872554/vip/internal/metrics"
)

// Blobs is the part of the blob store the catalog needs.
type Blobs interface {
	Exists(name string) bool
	Remove(name string) error
	List() ([]blob.FileInfo, error)
	NameFromURL(u string) string
	URLFor(name string) string
}

var _ Blobs = (*blob.Store)(nil)

type Options struct {
	DefaultCategory meta.Category
	Now             func() time.Time
}

type Catalog struct {
	store meta.Store
	blobs Blobs
	log   *logrus.Entry
	opts  Options

	mu      sync.RWMutex
	records []meta.VideoRecord
}

// Open loads the catalog document, reconciles it against the blob store and
// writes the result back.
func Open(store meta.Store, blobs Blobs, log *logrus.Entry, opts Options) (*Catalog, ReconcileResult) {
	if !opts.DefaultCategory.Valid() {
		opts.DefaultCategory = meta.CategoryBeginner
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Catalog{
		store: store,
		blobs: blobs,
		log:   log.WithField("component", "catalog"),
		opts:  opts,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	loaded := store.Load()
	next, res, err := c.reconcile(loaded, true)
	if err != nil {
		// Only a failing directory read gets here; keep what the document says.
		c.log.WithError(err).Error("startup reconcile failed")
		next = loaded
	}
	if err := c.store.Save(next); err != nil {
		c.log.WithError(err).Error("write catalog after startup reconcile")
	}
	c.records = next
	metrics.ReconcileRuns.WithLabelValues("startup").Inc()
	c.observe(res)

	c.log.WithFields(logrus.Fields{
		"videos": res.Total,
		"pruned": res.Pruned,
		"added":  res.Added,
	}).Info("catalog loaded")
	return c, res
}

// List returns a copy of the catalog in gallery order.
func (c *Catalog) List() []meta.VideoRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]meta.VideoRecord, len(c.records))
	for i, r := range c.records {
		r.VideoURL = fsutil.NormalizeURL(r.VideoURL)
		out[i] = r
	}
	return out
}

func (c *Catalog) Get(id string) (meta.VideoRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexOf(id)
	if i < 0 {
		return meta.VideoRecord{}, apperr.NotFound("video not found")
	}
	r := c.records[i]
	r.VideoURL = fsutil.NormalizeURL(r.VideoURL)
	return r, nil
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *Catalog) DefaultCategory() meta.Category { return c.opts.DefaultCategory }

// Append adds records at the end of the catalog and persists the result.
// A record already present for the same stored file is replaced; the
// reconciler may have imported the file between its write and this call.
// If the save fails the catalog is left unchanged.
func (c *Catalog) Append(records ...meta.VideoRecord) error {
	if len(records) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := make(map[string]bool, len(records))
	for _, r := range records {
		incoming[c.blobs.NameFromURL(r.VideoURL)] = true
	}
	next := make([]meta.VideoRecord, 0, len(c.records)+len(records))
	for _, r := range c.records {
		if incoming[c.blobs.NameFromURL(r.VideoURL)] {
			c.log.WithFields(logrus.Fields{"id": r.ID, "url": r.VideoURL}).Info("replacing record for uploaded file")
			continue
		}
		next = append(next, r)
	}
	next = append(next, records...)
	if err := c.commit(next); err != nil {
		return err
	}
	c.log.WithField("count", len(records)).Info("videos added to catalog")
	return nil
}

// DeleteByID removes the record and its file. The file is removed first; if
// the catalog save then fails the record stays and points at a missing file
// until the next reconcile prunes it.
func (c *Catalog) DeleteByID(id string) (meta.VideoRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return meta.VideoRecord{}, apperr.NotFound("video not found")
	}
	rec := c.records[i]

	if name := c.blobs.NameFromURL(rec.VideoURL); name != "" {
		if err := c.blobs.Remove(name); err != nil {
			return meta.VideoRecord{}, err
		}
	}
	if err := c.commit(slices.Delete(slices.Clone(c.records), i, i+1)); err != nil {
		return meta.VideoRecord{}, err
	}
	c.log.WithFields(logrus.Fields{"id": rec.ID, "url": rec.VideoURL}).Info("video deleted")
	return rec, nil
}

// Patch holds optional field updates. Nil fields are left as they are.
type Patch struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Category    *meta.Category `json:"category"`
}

// Update edits the mutable fields of a record. ID, VideoURL and UploadDate
// never change.
func (c *Catalog) Update(id string, p Patch) (meta.VideoRecord, error) {
	if p.Title != nil && *p.Title == "" {
		return meta.VideoRecord{}, apperr.Validation("title must not be empty")
	}
	if p.Category != nil && !p.Category.Valid() {
		return meta.VideoRecord{}, apperr.Validation(fmt.Sprintf("unknown category %q", *p.Category))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return meta.VideoRecord{}, apperr.NotFound("video not found")
	}
	next := slices.Clone(c.records)
	rec := &next[i]
	if p.Title != nil {
		rec.Title = *p.Title
	}
	if p.Description != nil {
		rec.Description = *p.Description
	}
	if p.Category != nil {
		rec.Category = *p.Category
	}
	if err := c.commit(next); err != nil {
		return meta.VideoRecord{}, err
	}
	return next[i], nil
}

// Close flushes the catalog to its document.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Save(c.records); err != nil {
		return apperr.Storage("cannot save catalog", err)
	}
	return nil
}

// commit persists next and, only on success, makes it the live catalog.
// Callers hold c.mu.
func (c *Catalog) commit(next []meta.VideoRecord) error {
	if err := c.store.Save(next); err != nil {
		c.log.WithError(err).Error("save catalog")
		return apperr.Storage("cannot save catalog", err)
	}
	c.records = next
	metrics.CatalogVideos.Set(float64(len(next)))
	return nil
}

func (c *Catalog) indexOf(id string) int {
	return slices.IndexFunc(c.records, func(r meta.VideoRecord) bool { return r.ID == id })
}

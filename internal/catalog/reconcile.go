package catalog

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/331872554/vip/internal/apperr"
	"github.com/331872554/vip/internal/blob"
	"github.com/331872554/vip/internal/id"
	"github.com/331872554/vip/internal/meta"
	"github.com/331872554/vip/internal/metrics"
)

// AutoImportDescription marks records the reconciler created for files found on disk.
const AutoImportDescription = "auto-imported"

type ReconcileResult struct {
	Scanned int `json:"scanned"`
	Pruned  int `json:"pruned"`
	Added   int `json:"added"`
	// Rewritten counts kept records whose URL was moved onto the store prefix.
	Rewritten int `json:"rewritten"`
	Total     int `json:"total"`
}

func (r ReconcileResult) Changed() bool { return r.Pruned > 0 || r.Added > 0 || r.Rewritten > 0 }

// Reconcile aligns the catalog with the blob directory: records whose file is
// gone are pruned, video files without a record get one. The document is
// rewritten only when something changed, so a second run is a no-op.
// It returns blob.ErrDirMissing when the blob directory does not exist.
func (c *Catalog) Reconcile() (ReconcileResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.ReconcileRuns.WithLabelValues("manual").Inc()
	next, res, err := c.reconcile(c.records, false)
	if err != nil {
		return res, err
	}
	if res.Changed() {
		if err := c.commit(next); err != nil {
			return ReconcileResult{Scanned: res.Scanned, Total: len(c.records)}, err
		}
	}
	c.observe(res)
	c.log.WithFields(logrus.Fields{
		"scanned":   res.Scanned,
		"pruned":    res.Pruned,
		"added":     res.Added,
		"rewritten": res.Rewritten,
		"total":     res.Total,
	}).Info("reconcile complete")
	return res, nil
}

// reconcile computes the reconciled catalog from current without touching
// c.records. With missingDirOK a missing blob directory counts as empty.
func (c *Catalog) reconcile(current []meta.VideoRecord, missingDirOK bool) ([]meta.VideoRecord, ReconcileResult, error) {
	var res ReconcileResult

	files, err := c.blobs.List()
	switch {
	case errors.Is(err, blob.ErrDirMissing) && missingDirOK:
		files = nil
	case err != nil:
		if !errors.Is(err, blob.ErrDirMissing) && apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Storage("cannot scan upload directory", err)
		}
		return nil, ReconcileResult{Total: len(current)}, err
	}
	res.Scanned = len(files)

	// File names are unique within the flat blob directory, so one record per
	// name is one record per videoUrl.
	referenced := make(map[string]bool, len(current))
	next := make([]meta.VideoRecord, 0, len(current)+len(files))
	for _, r := range current {
		name := c.blobs.NameFromURL(r.VideoURL)
		switch {
		case referenced[name]:
			c.log.WithFields(logrus.Fields{"id": r.ID, "url": r.VideoURL}).Warn("pruning duplicate catalog record")
			res.Pruned++
			continue
		case name == "" || !c.blobs.Exists(name):
			c.log.WithFields(logrus.Fields{"id": r.ID, "url": r.VideoURL}).Warn("pruning record without file")
			res.Pruned++
			continue
		}
		referenced[name] = true
		if u := c.blobs.URLFor(name); u != r.VideoURL {
			c.log.WithFields(logrus.Fields{"id": r.ID, "from": r.VideoURL, "to": u}).Info("rewriting record url")
			r.VideoURL = u
			res.Rewritten++
		}
		next = append(next, r)
	}

	for _, f := range files {
		if !blob.IsVideoFile(f.Name) || referenced[f.Name] {
			continue
		}
		referenced[f.Name] = true
		next = append(next, meta.VideoRecord{
			ID:          id.New(),
			Title:       f.Name,
			Description: AutoImportDescription,
			Category:    c.opts.DefaultCategory,
			VideoURL:    f.URL,
			UploadDate:  meta.NewTimestamp(c.opts.Now()),
		})
		c.log.WithField("file", f.Name).Info("imported orphaned video")
		res.Added++
	}

	res.Total = len(next)
	return next, res, nil
}

func (c *Catalog) observe(res ReconcileResult) {
	metrics.ReconcileChanges.WithLabelValues("pruned").Add(float64(res.Pruned))
	metrics.ReconcileChanges.WithLabelValues("added").Add(float64(res.Added))
	metrics.ReconcileChanges.WithLabelValues("rewritten").Add(float64(res.Rewritten))
	metrics.CatalogVideos.Set(float64(len(c.records)))
}

package meta

// Store abstracts catalog persistence. The whole catalog is one document.
type Store interface {
	// Load never fails: a missing or unreadable document yields an empty catalog.
	Load() []VideoRecord
	// Save replaces the whole document.
	Save(records []VideoRecord) error
}

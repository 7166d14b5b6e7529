package id

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a time-ordered UUIDv7 string: millisecond timestamp plus random bits.
func New() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

// FileName returns a unique blob file name "<unix-millis>-<random><ext>".
// ext is used as given, so callers must pass a sanitized extension.
func FileName(now time.Time, ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix + ext
}

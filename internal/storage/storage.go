// Package storage holds the object stores payment slips are uploaded to.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const SlipPrefix = "payment-slips"

// SlipStore persists one object and returns a URL it can be fetched from.
type SlipStore interface {
	Store(ctx context.Context, data []byte, contentType, name string) (string, error)
}

// SlipObjectName builds payment-slips/<unix millis>-<user id>.<subtype>, e.g.
// payment-slips/1760868000000-6f1c...-a3.png for image/png.
func SlipObjectName(now time.Time, userID uuid.UUID, contentType string) string {
	ext := contentType
	if i := strings.IndexByte(ext, ';'); i >= 0 {
		ext = ext[:i]
	}
	if i := strings.IndexByte(ext, '/'); i >= 0 {
		ext = ext[i+1:]
	}
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d-%s.%s", SlipPrefix, now.UnixMilli(), userID, ext)
}

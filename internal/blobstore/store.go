// Package blobstore stores uploaded images and derived heatmaps under
// UUID-prefixed keys and hands back locators (paths or URLs) for them.
package blobstore

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidLocator is returned when a locator does not name a key this store issued.
var ErrInvalidLocator = errors.New("blobstore: invalid locator")

// ErrNotFound is returned by Get when no blob exists for the locator.
var ErrNotFound = errors.New("blobstore: blob not found")

// Store is the blob backend used by the detection flow.
type Store interface {
	// Put stores data under a fresh key derived from suggestedName and
	// returns its locator.
	Put(ctx context.Context, data []byte, suggestedName, contentType string) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
	// Locate returns the locator for a key written by a collaborator that
	// shares this storage.
	Locate(key string) string
}

// NewKey builds a storage key of the form "<uuid>_<sanitized name>".
func NewKey(suggestedName string) string {
	name := sanitizeName(suggestedName)
	if name == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + "_" + name
}

// DeleteBestEffort removes the blob behind locator and logs, rather than
// returns, any failure. Empty locators are ignored.
func DeleteBestEffort(ctx context.Context, store Store, logger *zap.Logger, locator string) {
	if locator == "" {
		return
	}
	if err := store.Delete(ctx, locator); err != nil {
		logger.Warn("blob deletion failed", zap.String("locator", locator), zap.Error(err))
	}
}

// keyFromLocator extracts the storage key from the last path segment of a
// locator, undoing URL escaping.
func keyFromLocator(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", ErrInvalidLocator
	}
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		locator = u.EscapedPath()
	}
	segment := locator[strings.LastIndex(locator, "/")+1:]
	key, err := url.PathUnescape(segment)
	if err != nil {
		return "", ErrInvalidLocator
	}
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", ErrInvalidLocator
	}
	return key, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(key)
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}

// Package blob stores uploaded product images.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

const (
	ProductPrefix = "products/"
	// URLPrefix is where the HTTP layer serves stored objects.
	URLPrefix = "/images/"
)

var ErrNotFound = errors.New("object not found")

type Info struct {
	Name        string
	Size        int64
	ContentType string
	UploadedAt  time.Time
}

type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) error
	Open(ctx context.Context, name string) (io.ReadCloser, Info, error)
	Delete(ctx context.Context, name string) error
}

// ProductObjectName builds products/<file>-<unixmillis>-<seq> for an upload.
// seq is the upload's position within its request.
func ProductObjectName(filename string, now time.Time, seq int) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "image"
	}
	return fmt.Sprintf("%s%s-%d-%d", ProductPrefix, base, now.UnixMilli(), seq)
}

func URL(name string) string {
	return URLPrefix + name
}

// NameFromURL reverses URL. ok is false for references the store does not own.
func NameFromURL(ref string) (string, bool) {
	name, ok := strings.CutPrefix(ref, URLPrefix)
	if !ok || !validName(name) {
		return "", false
	}
	return name, true
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// Package storage provides access to the reports object store: a flat keyed
// blob namespace organised as Job/Category/file.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrPreconditionFailed is returned by UploadIf when the object changed
	// since the etag was observed.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrObjectNotFound is returned by Download for a missing key.
	ErrObjectNotFound = errors.New("object not found")

	// ErrObjectExists is returned by Upload when the key already exists and
	// overwrite was not requested.
	ErrObjectExists = errors.New("object already exists")
)

// Object is one immediate child of a listed prefix. Folder entries are
// synthesised from the key namespace.
type Object struct {
	Name     string
	Key      string
	IsFolder bool
}

// UploadOptions control a blob write.
type UploadOptions struct {
	Overwrite   bool
	ContentType string
}

// ObjectStore is the keyed blob namespace consumed by the portal.
type ObjectStore interface {
	// List returns the immediate children under prefix in alphabetic order.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Upload writes a blob at key.
	Upload(ctx context.Context, key string, body io.Reader, opts UploadOptions) error

	// UploadIf overwrites key only while its etag still matches. An empty
	// etag means the object must not exist yet.
	UploadIf(ctx context.Context, key string, body io.Reader, etag string) error

	// Download fetches a blob and its current etag.
	Download(ctx context.Context, key string) ([]byte, string, error)

	// PublicURL derives the publicly resolvable reference of a key.
	PublicURL(key string) string
}

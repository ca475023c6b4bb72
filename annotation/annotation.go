// Package annotation persists the job address map: a single JSON document
// in the reports bucket mapping job code to a free text site address.
package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/storage"
)

// MetaKey is the well-known key of the address document inside the bucket.
const MetaKey = "__meta/job-address.json"

// DocumentVersion marks the current on-disk schema. Version 1 documents are
// a bare map without the envelope and remain readable.
const DocumentVersion = 2

const maxSaveAttempts = 3

// ErrConflict is returned when the document kept changing under us for every
// save attempt.
var ErrConflict = errors.New("address document conflict")

type document struct {
	Version int               `json:"version"`
	Jobs    map[string]string `json:"jobs"`
}

// Store reads and writes the address document.
type Store struct {
	objects storage.ObjectStore
	logger  *zap.Logger
}

func NewStore(objects storage.ObjectStore, logger *zap.Logger) *Store {
	return &Store{objects: objects, logger: logger}
}

// Load fetches the address map. Any fetch or parse failure yields an empty
// map: a missing or corrupt document must never break the catalog view.
func (s *Store) Load(ctx context.Context) map[string]string {
	m, _, err := s.load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("address document unreadable, using empty map", zap.Error(err))
		}

		return map[string]string{}
	}

	return m
}

// Save upserts one job/address pair. Empty arguments and unchanged values
// are no-ops. The write is conditional on the etag observed by the read and
// is retried a bounded number of times when another writer got in first.
func (s *Store) Save(ctx context.Context, jobCode, address string) error {
	if jobCode == "" || address == "" {
		return nil
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		m, etag, err := s.load(ctx)
		if err != nil {
			if !errors.Is(err, storage.ErrObjectNotFound) {
				return fmt.Errorf("read address document: %w", err)
			}

			m, etag = map[string]string{}, ""
		}

		if m[jobCode] == address {
			return nil
		}

		m[jobCode] = address

		data, err := json.MarshalIndent(document{Version: DocumentVersion, Jobs: m}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode address document: %w", err)
		}

		err = s.objects.UploadIf(ctx, MetaKey, bytes.NewReader(data), etag)
		if err == nil {
			return nil
		}

		if !errors.Is(err, storage.ErrPreconditionFailed) {
			return fmt.Errorf("write address document: %w", err)
		}

		s.logger.Debug("address document changed concurrently, retrying",
			zap.String("job", jobCode), zap.Int("attempt", attempt+1))
	}

	return fmt.Errorf("%w: gave up after %d attempts", ErrConflict, maxSaveAttempts)
}

func (s *Store) load(ctx context.Context) (map[string]string, string, error) {
	data, etag, err := s.objects.Download(ctx, MetaKey)
	if err != nil {
		return nil, "", err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err == nil && doc.Jobs != nil {
		return doc.Jobs, etag, nil
	}

	// Version 1 layout: the document is the map itself.
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, "", fmt.Errorf("parse address document: %w", err)
	}

	if flat == nil {
		flat = map[string]string{}
	}

	return flat, etag, nil
}

// Package memory provides an in-memory ObjectStore used by the local run
// mode and by tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bbnconsulting/report-portal/storage"
)

type object struct {
	data []byte
	etag string
}

// Store implements storage.ObjectStore over a map. Etags are monotonic
// per-store write counters.
type Store struct {
	mu      *sync.RWMutex
	objects map[string]object
	writes  int

	// FailKeys makes operations on the listed key prefixes fail, so tests
	// can simulate partial store outages.
	FailKeys []string
}

func New() *Store {
	return &Store{
		mu:      &sync.RWMutex{},
		objects: make(map[string]object),
	}
}

func (s *Store) failing(key string) bool {
	for _, p := range s.FailKeys {
		if strings.HasPrefix(key, p) {
			return true
		}
	}

	return false
}

func (s *Store) List(_ context.Context, prefix string) ([]storage.Object, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	if s.failing(prefix) {
		return nil, fmt.Errorf("list %q: simulated failure", prefix)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]storage.Object)

	for key := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		rest := strings.TrimPrefix(key, prefix)
		if rest == "" {
			continue
		}

		if idx := strings.Index(rest, "/"); idx >= 0 {
			name := rest[:idx]
			seen[name] = storage.Object{Name: name, Key: prefix + name + "/", IsFolder: true}
		} else {
			seen[rest] = storage.Object{Name: rest, Key: key}
		}
	}

	items := make([]storage.Object, 0, len(seen))
	for _, obj := range seen {
		items = append(items, obj)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	return items, nil
}

func (s *Store) Upload(_ context.Context, key string, body io.Reader, opts storage.UploadOptions) error {
	if s.failing(key) {
		return fmt.Errorf("upload %q: simulated failure", key)
	}

	data, err := readAll(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; ok && !opts.Overwrite {
		return fmt.Errorf("%w: %s", storage.ErrObjectExists, key)
	}

	s.put(key, data)

	return nil
}

func (s *Store) UploadIf(_ context.Context, key string, body io.Reader, etag string) error {
	if s.failing(key) {
		return fmt.Errorf("conditional upload %q: simulated failure", key)
	}

	data, err := readAll(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.objects[key]

	switch {
	case etag == "" && ok:
		return fmt.Errorf("%w: %s", storage.ErrPreconditionFailed, key)
	case etag != "" && (!ok || current.etag != etag):
		return fmt.Errorf("%w: %s", storage.ErrPreconditionFailed, key)
	}

	s.put(key, data)

	return nil
}

func (s *Store) Download(_ context.Context, key string) ([]byte, string, error) {
	if s.failing(key) {
		return nil, "", fmt.Errorf("download %q: simulated failure", key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}

	return append([]byte(nil), obj.data...), obj.etag, nil
}

func (s *Store) PublicURL(key string) string {
	return "memory://reports/" + key
}

// Keys returns all stored keys sorted, for assertions in tests.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func (s *Store) put(key string, data []byte) {
	s.writes++
	s.objects[key] = object{data: data, etag: strconv.Itoa(s.writes)}
}

// WriteCount returns the number of blob writes performed so far.
func (s *Store) WriteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.writes
}

func readAll(body io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Package storage implements the flat on-disk content store for uploaded images.
//
// Every stored file lives directly under the store root and is addressed by a
// generated name. A post records the file as a reference of the form
// "<url prefix>/<name>", which is also the public URL the file is served at.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lenscape/internal/observability"

	"github.com/google/uuid"
)

var (
	// ErrOutsideRoot is returned when a name would resolve anywhere but directly under the root.
	ErrOutsideRoot = errors.New("path escapes content store root")
	// ErrInvalidName is returned for empty names.
	ErrInvalidName = errors.New("invalid stored file name")
	// ErrForeignReference is returned when a reference does not carry the store's URL prefix.
	ErrForeignReference = errors.New("reference does not belong to this content store")
	// ErrTooLarge is returned by Save when the stream is longer than the allowed maximum.
	ErrTooLarge = errors.New("stream exceeds maximum size")
)

// StoredFile describes one file found in the store.
type StoredFile struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is a directory of uploaded files. It is safe for concurrent use; it holds
// no mutable state and relies on unique names instead of locking.
type Store struct {
	root       string
	urlPrefix  string
	logger     *slog.Logger
	removeFile func(string) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for cleanup failures. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates the root directory if needed. The root is made absolute and
// its symlinks are evaluated once, so containment checks compare canonical paths.
func NewStore(root, urlPrefix string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("content store root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating content store root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving content store root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving content store root: %w", err)
	}

	prefix := "/" + strings.Trim(strings.TrimSpace(urlPrefix), "/")
	if prefix == "/" {
		return nil, errors.New("content store URL prefix is required")
	}

	s := &Store{
		root:       canonical,
		urlPrefix:  prefix,
		logger:     slog.Default(),
		removeFile: os.Remove,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the canonical absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// URLPrefix returns the public URL prefix, e.g. "/uploads".
func (s *Store) URLPrefix() string {
	return s.urlPrefix
}

// GenerateName builds "<ownerID>_<hex token><ext>". The token is a random v4
// UUID, so names never derive from client input and never collide in practice.
func GenerateName(ownerID uint, ext string) string {
	id := uuid.New()
	return fmt.Sprintf("%d_%s%s", ownerID, hex.EncodeToString(id[:]), ext)
}

// Reference returns the string recorded on a post for name.
func (s *Store) Reference(name string) string {
	return s.urlPrefix + "/" + name
}

// NameFromReference strips the URL prefix from a stored reference.
// The result is not yet validated; pass it through Resolve before touching disk.
func (s *Store) NameFromReference(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, s.urlPrefix+"/")
	if !ok {
		return "", ErrForeignReference
	}
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// Resolve maps name to an absolute path and checks that the path's parent is
// exactly the root. Anything else, including subdirectories, is ErrOutsideRoot.
func (s *Store) Resolve(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	candidate := filepath.Join(s.root, name)
	if filepath.Dir(candidate) != s.root {
		return "", ErrOutsideRoot
	}
	return candidate, nil
}

// Create opens a new file for writing. It fails if the name already exists.
func (s *Store) Create(name string) (*os.File, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	// #nosec G304: path is confined to the store root by Resolve
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
}

// Save streams r into a new file called name. At most maxBytes are accepted
// (no limit when maxBytes <= 0). On any failure, including cancellation of ctx,
// the partially written file is removed before returning.
func (s *Store) Save(ctx context.Context, name string, r io.Reader, maxBytes int64) (int64, error) {
	f, err := s.Create(name)
	if err != nil {
		return 0, err
	}

	written, err := copyAndClose(ctx, f, r, maxBytes)
	if err != nil {
		if rmErr := s.removeFile(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			observability.OrphanedFiles.WithLabelValues(observability.StagePartialWrite).Inc()
			s.logger.ErrorContext(ctx, "failed to remove partially written file",
				slog.String("file", name),
				slog.String("error", rmErr.Error()),
			)
		}
		return written, err
	}
	return written, nil
}

func copyAndClose(ctx context.Context, f *os.File, r io.Reader, maxBytes int64) (n int64, err error) {
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	src := io.Reader(contextReader{ctx: ctx, r: r})
	if maxBytes > 0 {
		src = io.LimitReader(src, maxBytes+1)
	}
	n, err = io.Copy(f, src)
	if err != nil {
		return n, err
	}
	if maxBytes > 0 && n > maxBytes {
		return n, ErrTooLarge
	}
	return n, f.Sync()
}

// Remove deletes the directory entry for name. Symlinks are not followed: a
// link inside the root is removed as a link and its target is left alone.
func (s *Store) Remove(name string) error {
	path, err := s.Resolve(name)
	if err != nil {
		return err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("refusing to remove directory %q", name)
	}
	return os.Remove(path)
}

// Exists reports whether a file called name is present in the store.
func (s *Store) Exists(name string) (bool, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return false, err
	}
	_, err = os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns every regular file directly under the root.
func (s *Store) List() ([]StoredFile, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	files := make([]StoredFile, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		files = append(files, StoredFile{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return files, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// Package storage holds uploaded document blobs behind a small
// reference-based interface so the ingestion core never touches paths
// directly.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore reads and writes opaque byte blobs by reference.
type BlobStore interface {
	// WriteBytes persists content and returns a stable reference to it.
	WriteBytes(content io.Reader) (ref string, err error)
	// ReadBytes opens the blob for the given reference.
	ReadBytes(ref string) (io.ReadCloser, error)
	// Remove deletes the blob. Missing blobs are not an error.
	Remove(ref string) error
	// Path resolves a reference to a local filesystem path, for
	// collaborators that must hand a file to an external binary.
	Path(ref string) (string, error)
}

// FSStore is a content-addressed blob store on the local filesystem.
// References are the hex SHA-256 of the content, so re-uploading the same
// document is idempotent at the blob layer.
type FSStore struct {
	root   string
	logger *slog.Logger
}

func NewFSStore(root string, logger *slog.Logger) (*FSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FSStore{root: root, logger: logger}, nil
}

func (s *FSStore) WriteBytes(content io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.root, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}

	ref := hex.EncodeToString(h.Sum(nil))
	final, err := s.Path(ref)
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(final); statErr == nil {
		s.logger.Debug("blob already stored", "ref", ref, "bytes", size)
		return ref, nil
	}
	if err := os.Rename(tmpName, final); err != nil {
		return "", fmt.Errorf("finalize blob: %w", err)
	}
	s.logger.Info("blob stored", "ref", ref, "bytes", size)
	return ref, nil
}

func (s *FSStore) ReadBytes(ref string) (io.ReadCloser, error) {
	p, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", ref, err)
	}
	return f, nil
}

func (s *FSStore) Remove(ref string) error {
	p, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %s: %w", ref, err)
	}
	return nil
}

func (s *FSStore) Path(ref string) (string, error) {
	// Refs are hex digests; reject anything that could traverse.
	if ref == "" || strings.ContainsAny(ref, `/\.`) {
		return "", fmt.Errorf("invalid blob reference %q", ref)
	}
	return filepath.Join(s.root, ref+".pdf"), nil
}

package ontology

import (
	"fmt"
	"path/filepath"
	"strings"

	"ontohub/internal/platform/models"
)

// resolveSource maps a requested archive path onto the storage directory.
// Relative paths are taken relative to it; anything that leaves it is refused.
func (s *Service) resolveSource(sourcePath string) (string, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return "", nil
	}
	if s.storageDir == "" {
		return "", fmt.Errorf("%w: source archives are disabled", ErrInvalidPackage)
	}

	path := sourcePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.storageDir, path)
	}
	path = filepath.Clean(path)
	if !contained(s.storageDir, path) {
		return "", fmt.Errorf("%w: source_path must be inside the package storage directory", ErrInvalidPackage)
	}
	return path, nil
}

// AttachmentPath is the archive sent with deliveries of pkg: its registered
// source when that still resolves inside the storage directory, otherwise
// <storage dir>/<package id>.zip. Without a storage directory nothing is
// attached.
func (s *Service) AttachmentPath(pkg *models.Package) string {
	if s.storageDir == "" {
		return ""
	}
	if pkg.SourcePath != "" && contained(s.storageDir, pkg.SourcePath) {
		return pkg.SourcePath
	}
	return filepath.Join(s.storageDir, pkg.ID+".zip")
}

// contained reports whether path lies under root, both lexically and after
// resolving symlinks of paths that exist.
func contained(root, path string) bool {
	if !within(root, path) {
		return false
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return true
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}
	return within(realRoot, real)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chitose/kotae/internal/models"
)

// DocumentID derives the stable document identifier from a file path: the
// path relative to the corpus root, with forward slashes on every platform.
// The same file always maps to the same identifier, which keeps ingestion
// idempotent.
func DocumentID(baseDir, path string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// LoadFile reads one corpus document from disk.
func LoadFile(baseDir, path string) (*models.CorpusDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return &models.CorpusDocument{
		ID:          DocumentID(baseDir, path),
		Path:        path,
		Text:        string(data),
		SizeBytes:   info.Size(),
		ModTime:     info.ModTime(),
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}

// LoadDirectory walks dir and loads every regular file whose extension is in
// extensions (all files when the list is empty). Hidden files and directories
// are skipped. Documents come back sorted by ID so reports are stable.
func LoadDirectory(dir string, extensions []string) ([]*models.CorpusDocument, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var docs []*models.CorpusDocument
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		name := d.Name()
		if d.IsDir() {
			if path != absDir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !extensionAllowed(filepath.Ext(path), extensions) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		doc, loadErr := LoadFile(absDir, path)
		if loadErr != nil {
			return loadErr
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// extensionAllowed accepts entries with or without the leading dot, so config
// lists like ["txt"] and [".txt"] behave the same.
func extensionAllowed(ext string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, allowed := range extensions {
		if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
			return true
		}
	}
	return false
}

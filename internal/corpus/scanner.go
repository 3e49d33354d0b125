// Package corpus discovers candidate documents under a corpus root.
package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/domain"
)

// Scanner walks a directory tree collecting files with known extensions.
type Scanner struct {
	root       string
	exts       map[string]struct{}
	skipHidden bool
	log        *zap.Logger
}

// NewScanner creates a scanner for root accepting the given extensions.
func NewScanner(root string, extensions []string, log *zap.Logger) *Scanner {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	return &Scanner{root: root, exts: exts, log: log}
}

// WithSkipHidden makes Scan ignore directories whose name starts with a dot.
func (s *Scanner) WithSkipHidden(skip bool) *Scanner {
	s.skipHidden = skip
	return s
}

// Scan returns every matching regular file, ordered by relative path.
// Symlinks are followed when they point at a regular file.
func (s *Scanner) Scan() ([]domain.CandidateFile, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root %s is not a directory", s.root)
	}

	var files []domain.CandidateFile
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			s.log.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if s.skipHidden && path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := s.exts[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				s.log.Warn("skipping broken symlink", zap.String("path", path), zap.Error(err))
				return nil
			}
			if !target.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			rel = path
		}
		files = append(files, domain.CandidateFile{
			Path:    path,
			RelPath: filepath.ToSlash(rel),
			Name:    d.Name(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

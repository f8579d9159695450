package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type kind int

const (
	kindImage kind = iota
	kindVideo
)

type candidate struct {
	path string
	kind kind
}

// enumerate walks every root and returns the files to index in walk order.
// Unreadable roots and directories are logged and skipped.
func (s *Scanner) enumerate() []candidate {
	var out []candidate
	seen := make(map[string]struct{})

	for _, root := range s.opts.Roots {
		root = filepath.Clean(root)
		if _, err := os.Stat(root); err != nil {
			s.logger.Warn("skipping asset root", "root", root, "error", err)
			continue
		}

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn("cannot read path", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if s.skipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || s.ignored(path) {
				return nil
			}
			k, ok := s.classify(path)
			if !ok {
				return nil
			}
			if _, dup := seen[path]; dup {
				return nil
			}
			seen[path] = struct{}{}
			out = append(out, candidate{path: path, kind: k})
			return nil
		})
		if err != nil {
			s.logger.Warn("walking asset root failed", "root", root, "error", err)
		}
	}
	return out
}

// skipDir reports whether dir is a skip path or lies below one.
func (s *Scanner) skipDir(dir string) bool {
	for _, skip := range s.opts.SkipPaths {
		skip = filepath.Clean(skip)
		if dir == skip || strings.HasPrefix(dir, skip+string(filepath.Separator)) {
			return true
		}
	}
	return s.ignored(dir)
}

// ignored reports whether path contains any ignore string, case-insensitively.
func (s *Scanner) ignored(path string) bool {
	lower := strings.ToLower(path)
	for _, ig := range s.opts.IgnoreStrings {
		if ig != "" && strings.Contains(lower, strings.ToLower(ig)) {
			return true
		}
	}
	return false
}

func (s *Scanner) classify(path string) (kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case slices.Contains(s.opts.ImageExtensions, ext):
		return kindImage, true
	case slices.Contains(s.opts.VideoExtensions, ext):
		return kindVideo, true
	}
	return 0, false
}

package merge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions are the file types a merge run picks up.
var DefaultExtensions = []string{".csv", ".tsv", ".json", ".xlsx", ".xls", ".parquet"}

// Discover walks root recursively and returns the files whose extension is in
// exts, sorted by path. A missing root yields an empty list; unreadable
// subdirectories are skipped.
func Discover(root string, exts []string) ([]SourceFile, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	wanted := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		wanted[ext] = struct{}{}
	}

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	seen := make(map[string]struct{})
	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := wanted[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if _, dup := seen[path]; dup {
			return nil
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return assignSources(root, paths), nil
}

// assignSources derives the source identifier of every path. Stems that occur
// more than once fall back to the relative path so ids stay distinct.
func assignSources(root string, paths []string) []SourceFile {
	stemCount := make(map[string]int, len(paths))
	for _, path := range paths {
		stemCount[fileStem(path)]++
	}
	files := make([]SourceFile, len(paths))
	for i, path := range paths {
		stem := fileStem(path)
		source := stem
		if stemCount[stem] > 1 {
			if rel, err := filepath.Rel(root, path); err == nil {
				source = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
			}
		}
		files[i] = SourceFile{Path: path, Source: source, Stem: stem}
	}
	return files
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

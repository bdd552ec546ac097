package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// memoryDirName is the directory of dated notes inside a workspace.
const memoryDirName = "memory"

var rootMemoryFiles = []string{"MEMORY.md", "memory.md"}

// EnsureMemoryDirectory creates the memory directory if it doesn't exist
func EnsureMemoryDirectory(basePath string) (string, error) {
	memoryPath := filepath.Join(basePath, memoryDirName)

	info, err := os.Stat(memoryPath)
	if err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("memory path exists but is not a directory: %s", memoryPath)
		}
		return memoryPath, nil
	}

	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat memory directory: %w", err)
	}

	if err := os.MkdirAll(memoryPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create memory directory: %w", err)
	}

	return memoryPath, nil
}

// ValidateMemoryPath validates that a path is safe for memory operations
func ValidateMemoryPath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative, got absolute path: %s", path)
	}

	cleanPath := filepath.Clean(filepath.FromSlash(path))
	if cleanPath != filepath.FromSlash(path) {
		return fmt.Errorf("path contains invalid components: %s", path)
	}

	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path cannot reference parent directories: %s", path)
	}

	return nil
}

// isMarkdown reports whether name has a .md extension.
func isMarkdown(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

// relativeDocPath returns the slash separated document path of abs. Files
// outside the workspace keep their absolute path.
func relativeDocPath(workspace, abs string) string {
	rel, err := filepath.Rel(workspace, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// listMemoryFiles returns the absolute paths of every memory document:
// MEMORY.md / memory.md at the root, markdown under memory/, and extra paths.
// Directories that cannot be read are returned as skipped entries.
func listMemoryFiles(workspace string, extraPaths []string) ([]string, []SkippedDocument) {
	seen := make(map[string]bool)
	var files []string
	var skipped []SkippedDocument

	add := func(abs string) {
		if seen[abs] {
			return
		}
		seen[abs] = true
		files = append(files, abs)
	}

	walk := func(dir string) {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == dir {
					return nil
				}
				skipped = append(skipped, SkippedDocument{
					Path:   relativeDocPath(workspace, path),
					Reason: err.Error(),
				})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if !d.IsDir() && isMarkdown(d.Name()) {
				add(path)
			}
			return nil
		})
		if err != nil {
			skipped = append(skipped, SkippedDocument{Path: relativeDocPath(workspace, dir), Reason: err.Error()})
		}
	}

	for _, name := range rootMemoryFiles {
		abs := filepath.Join(workspace, name)
		info, err := os.Lstat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if dupOfSeen(abs, info, files) {
			continue
		}
		add(abs)
	}

	walk(filepath.Join(workspace, memoryDirName))

	for _, extra := range extraPaths {
		abs := extra
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(workspace, extra)
		}
		abs = filepath.Clean(abs)
		info, err := os.Lstat(abs)
		if err != nil {
			continue
		}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
		case info.IsDir():
			walk(abs)
		case info.Mode().IsRegular() && isMarkdown(abs):
			add(abs)
		}
	}

	sort.Strings(files)
	return files, skipped
}

// dupOfSeen catches MEMORY.md and memory.md resolving to one file on
// case-insensitive filesystems.
func dupOfSeen(abs string, info os.FileInfo, files []string) bool {
	for _, f := range files {
		other, err := os.Lstat(f)
		if err == nil && os.SameFile(info, other) {
			return true
		}
	}
	return false
}

// isMemoryDocumentPath reports whether rel belongs to the document set.
func isMemoryDocumentPath(workspace, rel string, extraPaths []string) bool {
	rel = filepath.ToSlash(rel)
	for _, name := range rootMemoryFiles {
		if rel == name {
			return true
		}
	}
	if strings.HasPrefix(rel, memoryDirName+"/") && isMarkdown(rel) {
		return true
	}
	abs := filepath.Join(workspace, filepath.FromSlash(rel))
	for _, extra := range extraPaths {
		extraAbs := extra
		if !filepath.IsAbs(extraAbs) {
			extraAbs = filepath.Join(workspace, extra)
		}
		extraAbs = filepath.Clean(extraAbs)
		if abs == extraAbs && isMarkdown(abs) {
			return true
		}
		if strings.HasPrefix(abs, extraAbs+string(filepath.Separator)) && isMarkdown(abs) {
			return true
		}
	}
	return false
}

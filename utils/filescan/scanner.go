// Package filescan collects the text files of a directory as process units.
package filescan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kris-hansen/workbench/utils/chunker"
	"github.com/kris-hansen/workbench/utils/fileutil"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Token thresholds for a single unit sent to a model.
const (
	TokenThresholdSafe  = 10000
	TokenThresholdLarge = 25000
	BytesPerToken       = 4
)

// File is one scanned file.
type File struct {
	Path            string
	RelPath         string
	Size            int64
	EstimatedTokens int
}

// TokenCategory returns the token budget category for a file
func (f File) TokenCategory() string {
	if f.EstimatedTokens < TokenThresholdSafe {
		return "safe"
	} else if f.EstimatedTokens < TokenThresholdLarge {
		return "large"
	}
	return "oversized"
}

// Result holds the files found under Root in walk order.
type Result struct {
	Root    string
	Files   []File
	Ignored int
}

// Options configures the scanner behavior
type Options struct {
	// IgnoreDirs is a set of directory names to skip
	IgnoreDirs map[string]bool
	// IgnoreHidden skips files and dirs starting with "."
	IgnoreHidden bool
	// Extensions restricts the scan to these extensions; empty means any
	// non-binary file.
	Extensions []string
	// Exclude holds gitignore-style patterns relative to the root.
	Exclude []string
	// MaxDepth limits recursion depth (0 = unlimited)
	MaxDepth int
}

// DefaultOptions skips VCS metadata, dependency folders and hidden files.
func DefaultOptions() Options {
	return Options{
		IgnoreDirs: map[string]bool{
			"node_modules": true,
			"vendor":       true,
			"__pycache__":  true,
			".git":         true,
			".svn":         true,
			".hg":          true,
		},
		IgnoreHidden: true,
	}
}

// BinaryExtensions are never read as documents.
var BinaryExtensions = map[string]bool{
	".exe": true, ".bin": true, ".so": true, ".dylib": true, ".dll": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
	".pyc": true, ".pyo": true, ".class": true, ".o": true, ".a": true,
	".sqlite": true, ".db": true,
}

// Scan walks root and collects candidate documents. A .gitignore at the root
// is honored together with opts.Exclude.
func Scan(root string, opts Options) (*Result, error) {
	absRoot, err := fileutil.ExpandPath(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absRoot)
	}

	s := &scanner{root: absRoot, opts: opts, result: &Result{Root: absRoot}}
	if len(opts.Exclude) > 0 {
		s.exclude = gitignore.CompileIgnoreLines(opts.Exclude...)
	}
	if gi, err := gitignore.CompileIgnoreFile(filepath.Join(absRoot, ".gitignore")); err == nil {
		s.gitignore = gi
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .gitignore: %w", err)
	}
	if len(opts.Extensions) > 0 {
		s.exts = make(map[string]bool, len(opts.Extensions))
		for _, e := range opts.Extensions {
			e = strings.ToLower(e)
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			s.exts[e] = true
		}
	}

	if err := s.walk(absRoot, 0); err != nil {
		return nil, err
	}
	return s.result, nil
}

type scanner struct {
	root      string
	opts      Options
	exts      map[string]bool
	exclude   *gitignore.GitIgnore
	gitignore *gitignore.GitIgnore
	result    *Result
}

func (s *scanner) ignored(relPath string) bool {
	if s.gitignore != nil && s.gitignore.MatchesPath(relPath) {
		return true
	}
	return s.exclude != nil && s.exclude.MatchesPath(relPath)
}

func (s *scanner) walk(dir string, depth int) error {
	if s.opts.MaxDepth > 0 && depth > s.opts.MaxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)
		relPath, _ := filepath.Rel(s.root, path)
		relPath = filepath.ToSlash(relPath)

		if s.opts.IgnoreHidden && strings.HasPrefix(name, ".") {
			continue
		}

		if entry.IsDir() {
			if s.opts.IgnoreDirs[name] || s.ignored(relPath+"/") {
				s.result.Ignored++
				continue
			}
			if err := s.walk(path, depth+1); err != nil {
				return err
			}
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		if BinaryExtensions[ext] || (s.exts != nil && !s.exts[ext]) {
			continue
		}
		if s.ignored(relPath) {
			s.result.Ignored++
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		s.result.Files = append(s.result.Files, File{
			Path:            path,
			RelPath:         relPath,
			Size:            info.Size(),
			EstimatedTokens: int(info.Size() / BytesPerToken),
		})
	}
	return nil
}

// FilterByCategory returns files matching the given category
func (r *Result) FilterByCategory(category string) []File {
	var filtered []File
	for _, f := range r.Files {
		if f.TokenCategory() == category {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// UnitColumns are the row keys of a file unit.
var UnitColumns = []string{"path", "name"}

// Units reads every file as one process unit. The unit row carries the
// relative path and file name; blank files are left out.
func (r *Result) Units() (*chunker.Result, error) {
	res := &chunker.Result{Mode: chunker.ModeNone}
	for _, f := range r.Files {
		data, err := fileutil.ReadInput(f.Path, nil)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(data) == "" {
			continue
		}
		res.Units = append(res.Units, chunker.Unit{
			Index:   len(res.Units),
			RawText: data,
			Row:     map[string]string{"path": f.RelPath, "name": filepath.Base(f.RelPath)},
			Columns: UnitColumns,
		})
	}
	for _, f := range r.FilterByCategory("oversized") {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s is about %dk tokens and may exceed the model context", f.RelPath, f.EstimatedTokens/1000))
	}
	return res, nil
}

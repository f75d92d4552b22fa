package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxInputSize caps how much content a single input document may hold.
const MaxInputSize = 64 << 20

// ExpandPath expands ~ to the user's home directory, expands environment
// variables and returns an absolute, cleaned path.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		if path == "~" {
			return homeDir, nil
		}

		if strings.HasPrefix(path, "~/") {
			return filepath.Join(homeDir, path[2:]), nil
		}
		// ~user is left as-is
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// ReadInput reads a document from path, or from r when path is empty or "-".
func ReadInput(path string, r io.Reader) (string, error) {
	if path == "" || path == "-" {
		if r == nil {
			return "", nil
		}
		data, err := io.ReadAll(io.LimitReader(r, MaxInputSize+1))
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		if len(data) > MaxInputSize {
			return "", fmt.Errorf("input exceeds %d bytes", MaxInputSize)
		}
		return string(data), nil
	}

	expanded, err := ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %s: %w", path, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", expanded)
	}
	if info.Size() > MaxInputSize {
		return "", fmt.Errorf("file %s exceeds %d bytes", expanded, MaxInputSize)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", expanded, err)
	}
	return string(data), nil
}

// WriteFile writes content to path, creating parent directories as needed.
// The content is written to a temp file first and renamed into place.
func WriteFile(path string, content []byte) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return fmt.Errorf("failed to expand path %s: %w", path, err)
	}
	dir := filepath.Dir(expanded)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(expanded)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", expanded, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", expanded, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, expanded); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", expanded, err)
	}
	return nil
}

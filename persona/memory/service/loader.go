package service

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
	ignore "github.com/sabhiram/go-gitignore"
)

// SupportedExtensions are the document types the loader can read.
var SupportedExtensions = []string{".pdf", ".txt", ".md"}

// ErrUnsupportedFile is returned for extensions outside SupportedExtensions.
var ErrUnsupportedFile = errors.New("unsupported file type")

// Loader lists and reads documents from a data directory.
type Loader struct {
	dir     string
	ignorer *ignore.GitIgnore
}

// NewLoader creates a loader; ignoreFile is resolved inside dir and may be absent.
func NewLoader(dir, ignoreFile string) (*Loader, error) {
	l := &Loader{dir: dir}
	if ignoreFile == "" {
		return l, nil
	}
	path := filepath.Join(dir, ignoreFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to stat ignore file: %w", err)
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to compile ignore file %s: %w", path, err)
	}
	l.ignorer = gi
	return l, nil
}

// Dir is the scanned directory.
func (l *Loader) Dir() string { return l.dir }

// Accept reports whether path is a supported, non-ignored document.
func (l *Loader) Accept(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if !slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(name))) {
		return false
	}
	if l.ignorer != nil && l.ignorer.MatchesPath(name) {
		return false
	}
	return true
}

// Scan lists accepted files at the top level of the directory, sorted by name.
func (l *Loader) Scan() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir %s: %w", l.dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !l.Accept(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(l.dir, e.Name()))
	}
	return paths, nil
}

// Load extracts the plain text of one document.
func (l *Loader) Load(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(path))
	}
}

func loadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read text from %s: %w", path, err)
	}
	return buf.String(), nil
}

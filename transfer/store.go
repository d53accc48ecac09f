package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidName = errors.New("invalid file name")

// Store persists received artifacts under one directory. Every upload is
// written to its own temporary file and only renamed into place on commit.
type Store struct {
	dir  string
	open func(path string) (File, error)
}

// File is the open destination of one artifact.
type File interface {
	io.Writer
	io.Closer
}

type StoreOption func(*Store)

// WithOpener replaces how temporary files are created. The opener must
// fail if path already exists.
func WithOpener(open func(path string) (File, error)) StoreOption {
	return func(s *Store) {
		s.open = open
	}
}

func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		dir = "./"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	s := &Store{dir: dir, open: openExclusive}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func openExclusive(path string) (File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

func (s *Store) Dir() string {
	return s.dir
}

// SanitizeName strips any client side directories, accepting both
// separators, and refuses names that cannot be a plain file.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, 0) {
		return "", ErrInvalidName
	}

	return name, nil
}

// Artifact is a destination file that is not yet visible under its final name.
type Artifact struct {
	name  string
	final string
	temp  string
	file  File
}

func (s *Store) Create(name string) (*Artifact, error) {
	name, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}

	temp := filepath.Join(s.dir, fmt.Sprintf(".%s.%s.part", name, uuid.New().String()))

	file, err := s.open(temp)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", temp, err)
	}

	return &Artifact{
		name:  name,
		final: filepath.Join(s.dir, name),
		temp:  temp,
		file:  file,
	}, nil
}

func (a *Artifact) Name() string {
	return a.name
}

func (a *Artifact) Write(p []byte) (int, error) {
	return a.file.Write(p)
}

// Commit closes the artifact and atomically renames it to its final path.
// An existing file with the same name is replaced.
func (a *Artifact) Commit() (string, error) {
	if err := a.file.Close(); err != nil {
		os.Remove(a.temp)
		return "", fmt.Errorf("failed to close %s: %w", a.temp, err)
	}

	if err := os.Rename(a.temp, a.final); err != nil {
		os.Remove(a.temp)
		return "", fmt.Errorf("failed to rename %s: %w", a.temp, err)
	}

	return a.final, nil
}

func (a *Artifact) Discard() error {
	a.file.Close()

	if err := os.Remove(a.temp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/auth"
)

const (
	credentialFile = "credential.json"
	handshakeFile  = "handshake.json"
)

// FileStore keeps state as JSON files under a directory, one file per entry.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *logrus.Entry
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, logger *logrus.Entry) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("credential store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("credential store: create dir: %w", err)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FileStore{dir: dir, logger: logger.WithField("store", "file")}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Save(_ context.Context, cred auth.Credential) error {
	return s.write(credentialFile, cred)
}

func (s *FileStore) Load(_ context.Context) (*auth.Credential, error) {
	var cred auth.Credential
	ok, err := s.read(credentialFile, &cred)
	if err != nil || !ok {
		return nil, err
	}
	return &cred, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	return s.remove(credentialFile)
}

func (s *FileStore) SaveHandshake(_ context.Context, hs Handshake) error {
	return s.write(handshakeFile, hs)
}

func (s *FileStore) LoadHandshake(_ context.Context) (*Handshake, error) {
	var hs Handshake
	ok, err := s.read(handshakeFile, &hs)
	if err != nil || !ok {
		return nil, err
	}
	return &hs, nil
}

func (s *FileStore) ClearHandshake(_ context.Context) error {
	return s.remove(handshakeFile)
}

func (s *FileStore) write(name string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("credential store: encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("credential store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("credential store: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credential store: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credential store: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credential store: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("credential store: replace %s: %w", name, err)
	}
	s.logger.WithField("entry", name).Debug("stored entry")
	return nil
}

func (s *FileStore) read(name string, out any) (bool, error) {
	s.mu.Lock()
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("credential store: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.WithError(err).WithField("entry", name).Warn("discarding unreadable entry")
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return true, nil
}

func (s *FileStore) remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credential store: remove %s: %w", name, err)
	}
	s.logger.WithField("entry", name).Debug("cleared entry")
	return nil
}

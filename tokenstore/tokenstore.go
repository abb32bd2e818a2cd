// Package tokenstore implements the persisted on-disk token layout (§6):
// one <provider>.tok file holding the base64 token envelope and, when a
// provider carries extra hints (an S3 region, an OAuth client ID), a
// sibling <provider>.hints file holding the base64 hints envelope.
// Both are written atomically via a temp-file-then-rename so a crash
// mid-write never leaves a half-written file behind.
package tokenstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/provider"
	"github.com/mitchellh/go-homedir"
)

// DefaultDirName is the directory created under the user's home directory
// when no explicit directory is configured.
const DefaultDirName = ".cloudkit"

// DefaultDir resolves the default persisted-state directory, expanding
// "~" via go-homedir the way rfratto-viceroy resolves its own config
// paths.
func DefaultDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("tokenstore: resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// FileStore persists tokens and hints as sibling files in Dir. It
// satisfies auth.TokenStore.
type FileStore struct {
	Dir string
}

// NewFileStore builds a FileStore rooted at dir, creating it if necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("tokenstore: create %s: %w", dir, err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) tokenPath(label string) string { return filepath.Join(s.Dir, label+".tok") }
func (s *FileStore) hintsPath(label string) string { return filepath.Join(s.Dir, label+".hints") }

// Load reads and decodes the token envelope for label. A missing file is
// not an error: it reports (zero, false, nil).
func (s *FileStore) Load(label string) (cloudkit.Token, bool, error) {
	raw, err := os.ReadFile(s.tokenPath(label))
	if os.IsNotExist(err) {
		return cloudkit.Token{}, false, nil
	}
	if err != nil {
		return cloudkit.Token{}, false, fmt.Errorf("tokenstore: read %s: %w", s.tokenPath(label), err)
	}
	_, tok, err := cloudkit.DecodeTokenEnvelope(string(raw))
	if err != nil {
		return cloudkit.Token{}, false, fmt.Errorf("tokenstore: decode %s: %w", s.tokenPath(label), err)
	}
	return tok, true, nil
}

// Save atomically writes tok's envelope for label.
func (s *FileStore) Save(label string, tok cloudkit.Token) error {
	env, err := cloudkit.EncodeTokenEnvelope(label, tok)
	if err != nil {
		return fmt.Errorf("tokenstore: encode token for %s: %w", label, err)
	}
	return atomicWrite(s.tokenPath(label), []byte(env))
}

// LoadHints reads and decodes the hints envelope for label. A missing
// file reports (nil, false, nil) rather than an error, since most
// providers carry no extra hints.
func (s *FileStore) LoadHints(label string) (cloudkit.Hints, bool, error) {
	raw, err := os.ReadFile(s.hintsPath(label))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("tokenstore: read %s: %w", s.hintsPath(label), err)
	}
	hints, err := provider.CredentialsFromString(string(raw))
	if err != nil {
		return nil, false, fmt.Errorf("tokenstore: decode %s: %w", s.hintsPath(label), err)
	}
	return hints, true, nil
}

// SaveHints atomically writes hints for label.
func (s *FileStore) SaveHints(label string, hints cloudkit.Hints) error {
	env, err := provider.CredentialsToString(hints)
	if err != nil {
		return fmt.Errorf("tokenstore: encode hints for %s: %w", label, err)
	}
	return atomicWrite(s.hintsPath(label), []byte(env))
}

// atomicWrite writes data to a temp file in the same directory as path,
// then renames it into place; rename is atomic on the same filesystem, so
// a reader never observes a partially written file.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("tokenstore: create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("tokenstore: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("tokenstore: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("tokenstore: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("tokenstore: rename into %s: %w", path, err)
	}
	return nil
}

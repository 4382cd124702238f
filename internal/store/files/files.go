// Package files stores per-session sidecar uploads whose contents can be
// folded into a generation as context, and reads per-assistant context
// directories.
package files

import (
	"os"
	"path/filepath"
	"strings"
)

// excerptCap bounds how much of one file is pulled into a prompt.
const excerptCap = 4000

// Store reads and writes generation sidecar files.
type Store interface {
	Save(sessionID, name string, content []byte) error
	// Excerpt returns up to excerptCap runes of the named file, or an
	// empty string when the file does not exist.
	Excerpt(sessionID, name string) (string, error)
	Remove(sessionID string) error

	// ContextFiles concatenates the contents of an assistant's context
	// directory with single spaces, each file capped at excerptCap
	// runes. A missing directory yields an empty string.
	ContextFiles(assistantID string) (string, error)
}

// FSStore keeps session files under <base>/files/sessions/<session-id>/
// and assistant context under <base>/files/assistants/<assistant-id>/.
type FSStore struct {
	base string
}

func NewFSStore(base string) *FSStore {
	return &FSStore{base: base}
}

func (s *FSStore) sessionDir(sessionID string) string {
	return filepath.Join(s.base, "files", "sessions", sessionID)
}

func (s *FSStore) assistantDir(assistantID string) string {
	return filepath.Join(s.base, "files", "assistants", assistantID)
}

func (s *FSStore) Save(sessionID, name string, content []byte) error {
	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filepath.Base(name)), content, 0o600)
}

func (s *FSStore) Excerpt(sessionID, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(sessionID), filepath.Base(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return capRunes(data), nil
}

func (s *FSStore) Remove(sessionID string) error {
	return os.RemoveAll(s.sessionDir(sessionID))
}

func (s *FSStore) ContextFiles(assistantID string) (string, error) {
	dir := s.assistantDir(assistantID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var parts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return "", err
		}
		if text := capRunes(data); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func capRunes(data []byte) string {
	text := strings.ToValidUTF8(string(data), "")
	runes := []rune(text)
	if len(runes) > excerptCap {
		runes = runes[:excerptCap]
	}
	return string(runes)
}

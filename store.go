package blario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Store persists chat history between sessions. The client writes after
// finalized replies and server errors only, never on the chunk hot path, so
// implementations see a bounded write volume.
//
// System messages reach SaveMessages but are filtered out again on load;
// callers should not rely on them surviving a restart.
type Store interface {
	Messages() ([]ChatMessage, error)
	SaveMessages(msgs []ChatMessage) error
	// Session returns the stored session, or (nil, nil) when absent.
	Session() (*Session, error)
	SaveSession(s Session) error
	Clear() error
}

// MemoryStore is the default Store: history lives for the process lifetime.
type MemoryStore struct {
	mu      sync.Mutex
	msgs    []ChatMessage
	session *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Messages() ([]ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.msgs))
	copy(out, s.msgs)
	return out, nil
}

func (s *MemoryStore) SaveMessages(msgs []ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = make([]ChatMessage, len(msgs))
	copy(s.msgs, msgs)
	return nil
}

func (s *MemoryStore) Session() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil
	}
	sess := *s.session
	return &sess, nil
}

func (s *MemoryStore) SaveSession(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &sess
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
	s.session = nil
	return nil
}

// FileStore persists chat history as a single JSON document on disk.
// Payloads above a threshold are zstd-compressed; the format is detected on
// read via the zstd magic number, so small files stay greppable JSON.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// compressThreshold mirrors the wire-level rule: compressing tiny payloads
// costs more than it saves.
const compressThreshold = 1024

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// NewFileStore creates a FileStore at path, creating parent directories as
// needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// fileDoc is the on-disk shape.
type fileDoc struct {
	Session  *Session      `json:"session,omitempty"`
	Messages []ChatMessage `json:"messages"`
}

func (s *FileStore) Messages() ([]ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

func (s *FileStore) SaveMessages(msgs []ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Messages = msgs
	return s.save(doc)
}

func (s *FileStore) Session() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Session, nil
}

func (s *FileStore) SaveSession(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Session = &sess
	return s.save(doc)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

func (s *FileStore) load() (fileDoc, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileDoc{}, nil
	}
	if err != nil {
		return fileDoc{}, fmt.Errorf("store: read: %w", err)
	}

	if bytes.HasPrefix(data, zstdMagic) {
		data, err = zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return fileDoc{}, fmt.Errorf("store: decompress: %w", err)
		}
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fileDoc{}, fmt.Errorf("store: decode: %w", err)
	}
	return doc, nil
}

func (s *FileStore) save(doc fileDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	if len(data) > compressThreshold {
		compressed := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
		if len(compressed) < len(data) {
			data = compressed
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}

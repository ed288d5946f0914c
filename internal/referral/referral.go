// Package referral stores uploaded referral letters and hands back an opaque
// reference that the appointment row keeps.
package referral

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-portal/internal/fault"
)

var ErrLetterNotFound = fmt.Errorf("referral letter %w", fault.ErrNotFound)

// AllowedTypes are the content types accepted as referral letters.
var AllowedTypes = []string{"application/pdf", "image/jpeg", "image/png"}

type Letter struct {
	Ref       string
	OwnerID   uuid.UUID
	Filename  string
	MimeType  string
	Content   []byte
	CreatedAt time.Time
}

type Store interface {
	Put(ctx context.Context, letter Letter) error
	Get(ctx context.Context, ref string) (*Letter, error)
	Delete(ctx context.Context, ref string) error
}

type Service struct {
	store    Store
	maxBytes int64
}

func NewService(store Store, maxBytes int64) *Service {
	return &Service{store: store, maxBytes: maxBytes}
}

// Save sniffs and stores content, returning the new reference.
func (s *Service) Save(ctx context.Context, owner uuid.UUID, filename string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fault.Invalid("referralLetter", "referral letter is empty")
	}
	if s.maxBytes > 0 && int64(len(content)) > s.maxBytes {
		return "", fault.Invalid("referralLetter", fmt.Sprintf("referral letter exceeds %d bytes", s.maxBytes))
	}

	mt := mimetype.Detect(content)
	if !mimetype.EqualsAny(mt.String(), AllowedTypes...) {
		return "", fault.Invalid("referralLetter", fmt.Sprintf("unsupported file type %s", mt.String()))
	}

	letter := Letter{
		Ref:       uuid.NewString(),
		OwnerID:   owner,
		Filename:  filename,
		MimeType:  mt.String(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Put(ctx, letter); err != nil {
		return "", fmt.Errorf("store referral letter: %w", err)
	}
	return letter.Ref, nil
}

// Open returns a letter only to its owner. Other callers see not found.
func (s *Service) Open(ctx context.Context, owner uuid.UUID, ref string) (*Letter, error) {
	letter, err := s.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if letter.OwnerID != owner {
		return nil, ErrLetterNotFound
	}
	return letter, nil
}

// Discard removes a letter whose booking was rejected. Unknown refs are ignored.
func (s *Service) Discard(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	return s.store.Delete(ctx, ref)
}

type MemoryStore struct {
	mu      sync.RWMutex
	letters map[string]Letter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{letters: make(map[string]Letter)}
}

func (m *MemoryStore) Put(_ context.Context, letter Letter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	letter.Content = append([]byte(nil), letter.Content...)
	m.letters[letter.Ref] = letter
	return nil
}

func (m *MemoryStore) Get(_ context.Context, ref string) (*Letter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	letter, ok := m.letters[ref]
	if !ok {
		return nil, ErrLetterNotFound
	}
	return &letter, nil
}

func (m *MemoryStore) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.letters, ref)
	return nil
}

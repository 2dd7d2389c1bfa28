package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements the Store interface in memory. It backs tests and
// keeps the repository contract honest next to the GORM implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]*Account
	messages map[int64]*Message
	senders  map[int64]*Sender
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: map[int64]*Account{},
		messages: map[int64]*Message{},
		senders:  map[int64]*Sender{},
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreateAccount(ctx context.Context, a *Account) error {
	if a == nil {
		return errors.New("account cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == a.Email {
			return fmt.Errorf("account %s already exists", a.Email)
		}
	}
	a.ID = s.id()
	s.accounts[a.ID] = copyAccount(a)
	return nil
}

func (s *MemoryStore) UpdateAccount(ctx context.Context, a *Account) error {
	if a == nil || a.ID == 0 {
		return errors.New("account must have an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return fmt.Errorf("account %d: %w", a.ID, ErrNotFound)
	}
	s.accounts[a.ID] = copyAccount(a)
	return nil
}

func (s *MemoryStore) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return copyAccount(a), nil
		}
	}
	return nil, fmt.Errorf("account %s: %w", email, ErrNotFound)
}

func (s *MemoryStore) SaveToken(ctx context.Context, accountID int64, token json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	a.Token = append(json.RawMessage(nil), token...)
	return nil
}

func (s *MemoryStore) DeleteAccount(ctx context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, accountID)
	for id, m := range s.messages {
		if m.AccountID == accountID {
			delete(s.messages, id)
		}
	}
	for id, sd := range s.senders {
		if sd.AccountID == accountID {
			delete(s.senders, id)
		}
	}
	return nil
}

func (s *MemoryStore) CreateStubs(ctx context.Context, msgs []*Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if s.lookupLocked(m.AccountID, m.ExternalID) != nil {
			continue
		}
		cp := copyMessage(m)
		cp.ID = s.id()
		s.messages[cp.ID] = cp
		created++
	}
	return created, nil
}

func (s *MemoryStore) lookupLocked(accountID int64, externalID string) *Message {
	for _, m := range s.messages {
		if m.AccountID == accountID && m.ExternalID == externalID {
			return m
		}
	}
	return nil
}

func (s *MemoryStore) MessageByExternalID(ctx context.Context, accountID int64, externalID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m := s.lookupLocked(accountID, externalID); m != nil {
		return copyMessage(m), nil
	}
	return nil, fmt.Errorf("message %s: %w", externalID, ErrNotFound)
}

func (s *MemoryStore) UpdateMessage(ctx context.Context, m *Message) error {
	if m == nil || m.ID == 0 {
		return errors.New("message must have an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; !ok {
		return fmt.Errorf("message %d: %w", m.ID, ErrNotFound)
	}
	s.messages[m.ID] = copyMessage(m)
	return nil
}

func (s *MemoryStore) UnfilledMessages(ctx context.Context, accountID int64) ([]*Message, error) {
	return s.filter(accountID, func(m *Message) bool { return m.Body == "" })
}

func (s *MemoryStore) MessagesMissingSubject(ctx context.Context, accountID int64) ([]*Message, error) {
	return s.filter(accountID, func(m *Message) bool { return m.Subject == "" })
}

func (s *MemoryStore) filter(accountID int64, keep func(*Message) bool) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Message
	for _, m := range s.messages {
		if m.AccountID == accountID && keep(m) {
			out = append(out, copyMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DistinctSenders(ctx context.Context, accountID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	for _, m := range s.messages {
		if m.AccountID == accountID && !seen[m.Sender] {
			seen[m.Sender] = true
		}
	}
	out := make([]string, 0, len(seen))
	for raw := range seen {
		out = append(out, raw)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CreateSenders(ctx context.Context, senders []*Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sd := range senders {
		sd.ID = s.id()
		cp := *sd
		s.senders[sd.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) LinkSender(ctx context.Context, accountID, senderID int64, rawSender string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var linked int64
	for _, m := range s.messages {
		if m.AccountID == accountID && m.Sender == rawSender {
			id := senderID
			m.SenderID = &id
			linked++
		}
	}
	return linked, nil
}

func (s *MemoryStore) TopSenders(ctx context.Context, accountID int64, limit int) ([]*Sender, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[int64]int{}
	for _, m := range s.messages {
		if m.AccountID == accountID && m.SenderID != nil {
			counts[*m.SenderID]++
		}
	}
	var out []*Sender
	for _, sd := range s.senders {
		if sd.AccountID != accountID {
			continue
		}
		cp := *sd
		cp.MessageCount = counts[sd.ID]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MessageCount != out[j].MessageCount {
			return out[i].MessageCount > out[j].MessageCount
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyAccount(a *Account) *Account {
	cp := *a
	cp.Credentials = append(json.RawMessage(nil), a.Credentials...)
	cp.Token = append(json.RawMessage(nil), a.Token...)
	return &cp
}

func copyMessage(m *Message) *Message {
	cp := *m
	cp.LabelIDs = append([]string(nil), m.LabelIDs...)
	if m.SenderID != nil {
		id := *m.SenderID
		cp.SenderID = &id
	}
	return &cp
}

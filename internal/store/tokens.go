package store

import (
	"fmt"
	"sync"

	"qms/internal/models"
)

// TokenStore is the authoritative token collection. It checks structural
// integrity only; lifecycle rules are enforced by Transition before a
// patch reaches Update.
type TokenStore struct {
	mu     sync.RWMutex
	tokens []models.Token
	index  map[string]int
}

func NewTokenStore(tokens []models.Token) (*TokenStore, error) {
	s := &TokenStore{}
	if err := s.Replace(tokens); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TokenStore) Create(token models.Token) error {
	if token.ID == "" {
		return invalid("id", "is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[token.ID]; exists {
		return invalid("id", fmt.Sprintf("%q already exists", token.ID))
	}
	s.index[token.ID] = len(s.tokens)
	s.tokens = append(s.tokens, token.Clone())
	return nil
}

func (s *TokenStore) Get(id string) (models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return models.Token{}, ErrTokenNotFound
	}
	return s.tokens[pos].Clone(), nil
}

// Update applies patch to a copy of the token and stores the result only
// if patch succeeds. The token id cannot be changed.
func (s *TokenStore) Update(id string, patch func(models.Token) (models.Token, error)) (models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return models.Token{}, ErrTokenNotFound
	}
	next, err := patch(s.tokens[pos].Clone())
	if err != nil {
		return models.Token{}, err
	}
	if next.ID != id {
		return models.Token{}, invalid("id", "cannot be changed")
	}
	s.tokens[pos] = next.Clone()
	return next, nil
}

// ListBy returns matching tokens in insertion order.
func (s *TokenStore) ListBy(match func(models.Token) bool) []models.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Token
	for _, token := range s.tokens {
		if match == nil || match(token) {
			out = append(out, token.Clone())
		}
	}
	return out
}

func (s *TokenStore) CountBy(match func(models.Token) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, token := range s.tokens {
		if match(token) {
			count++
		}
	}
	return count
}

func (s *TokenStore) All() []models.Token {
	return s.ListBy(nil)
}

func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Replace swaps the whole collection. Used when loading persisted state
// and on reset.
func (s *TokenStore) Replace(tokens []models.Token) error {
	index := make(map[string]int, len(tokens))
	copied := make([]models.Token, 0, len(tokens))
	for _, token := range tokens {
		if token.ID == "" {
			return invalid("tokens", "contains a token without id")
		}
		if _, exists := index[token.ID]; exists {
			return invalid("tokens", fmt.Sprintf("duplicate id %q", token.ID))
		}
		index[token.ID] = len(copied)
		copied = append(copied, token.Clone())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = copied
	s.index = index
	return nil
}

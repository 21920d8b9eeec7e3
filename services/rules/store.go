package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store persists the flat rule list, manual and derived alike. List order is
// preserved: batch execution evaluates rules in store order. ReplaceAll and
// ReplacePrefix must be atomic — a concurrent reader sees either the old
// list or the new one, never a half-applied mix, and two ReplacePrefix
// calls with different prefixes never erase each other's rules.
type Store interface {
	List(ctx context.Context) ([]Rule, error)
	ReplaceAll(ctx context.Context, ruleList []Rule) error
	ReplacePrefix(ctx context.Context, prefix string, fresh []Rule) error
	Add(ctx context.Context, rule Rule) (*Rule, error)
	Update(ctx context.Context, id string, patch Patch) (*Rule, error)
	Remove(ctx context.Context, id string) (bool, error)
}

// MemoryStore is an in-memory Store for embedding and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: []Rule{}}
}

// List returns a copy of the rule list in insertion order.
func (s *MemoryStore) List(_ context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Rule(nil), s.rules...), nil
}

// ReplaceAll swaps the entire rule list in one assignment.
func (s *MemoryStore) ReplaceAll(_ context.Context, ruleList []Rule) error {
	next := append([]Rule(nil), ruleList...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = next
	return nil
}

// ReplacePrefix swaps the rules whose ids start with prefix for the fresh
// set in one critical section. Rules outside the prefix keep their order;
// fresh rules are appended after them.
func (s *MemoryStore) ReplacePrefix(_ context.Context, prefix string, fresh []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]Rule, 0, len(s.rules)+len(fresh))
	for _, rule := range s.rules {
		if !strings.HasPrefix(rule.ID, prefix) {
			next = append(next, rule)
		}
	}
	s.rules = append(next, fresh...)
	return nil
}

// Add appends a manual rule. An empty id is filled with a generated uuid;
// ids inside the derived-rule namespace are rejected to protect reconciler
// ownership.
func (s *MemoryStore) Add(_ context.Context, rule Rule) (*Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if IsDerivedID(rule.ID) {
		return nil, fmt.Errorf("rule id %q is reserved for workflow-derived rules", rule.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rules {
		if existing.ID == rule.ID {
			return nil, fmt.Errorf("rule %q already exists", rule.ID)
		}
	}
	s.rules = append(s.rules, rule)
	return &rule, nil
}

// Update applies a partial update to a rule. Returns nil, nil when the rule
// does not exist.
func (s *MemoryStore) Update(_ context.Context, id string, patch Patch) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID != id {
			continue
		}
		applyPatch(&s.rules[i], patch)
		updated := s.rules[i]
		return &updated, nil
	}
	return nil, nil
}

// Remove deletes a rule by id, reporting whether it existed.
func (s *MemoryStore) Remove(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func applyPatch(rule *Rule, patch Patch) {
	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Type != nil {
		rule.Type = *patch.Type
	}
	if patch.Enabled != nil {
		rule.Enabled = *patch.Enabled
	}
	if patch.Conditions != nil {
		rule.Conditions = *patch.Conditions
	}
	if patch.Actions != nil {
		rule.Actions = *patch.Actions
	}
}

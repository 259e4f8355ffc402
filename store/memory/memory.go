package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jrsteele09/go-auth-core/store"
)

var _ store.CredentialStore = (*Store)(nil)

// Store keeps credential records in memory. Permissions of a principal are
// its own permissions plus those granted to its roles.
type Store struct {
	records   map[string]store.Record
	rolePerms map[string][]string
	lock      sync.RWMutex
}

func New() *Store {
	return &Store{
		records:   make(map[string]store.Record),
		rolePerms: make(map[string][]string),
	}
}

func (s *Store) FindCredentials(_ context.Context, principalID string) (*store.Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	r, ok := s.records[principalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	r.Roles = append([]string(nil), r.Roles...)
	r.Permissions = append([]string(nil), r.Permissions...)
	return &r, nil
}

func (s *Store) InsertUser(_ context.Context, record store.Record) error {
	if record.PrincipalID == "" {
		return fmt.Errorf("[memory.InsertUser] principal id is required")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.records[record.PrincipalID]; exists {
		return fmt.Errorf("[memory.InsertUser] %q: %w", record.PrincipalID, store.ErrAmbiguous)
	}
	record.Roles = append([]string(nil), record.Roles...)
	record.Permissions = append([]string(nil), record.Permissions...)
	s.records[record.PrincipalID] = record
	return nil
}

// SetRolePermissions grants permissions to every holder of role.
func (s *Store) SetRolePermissions(role string, permissions ...string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rolePerms[role] = append([]string(nil), permissions...)
}

// Delete removes a principal.
func (s *Store) Delete(principalID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.records[principalID]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, principalID)
	return nil
}

func (s *Store) Roles(_ context.Context, principalID string) ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	r, ok := s.records[principalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]string(nil), r.Roles...), nil
}

func (s *Store) Permissions(_ context.Context, principalID string) ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	r, ok := s.records[principalID]
	if !ok {
		return nil, store.ErrNotFound
	}

	set := make(map[string]struct{})
	for _, p := range r.Permissions {
		set[p] = struct{}{}
	}
	for _, role := range r.Roles {
		for _, p := range s.rolePerms[role] {
			set[p] = struct{}{}
		}
	}

	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

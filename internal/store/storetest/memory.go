// Package storetest provides an in-memory stand-in for store.Store.
package storetest

import (
	"context"
	"sort"
	"sync"

	"filedrop/internal/store"
)

// Memory mirrors the constraints of the Postgres schema that callers rely on:
// unique identifiers, unique usernames and uploader cleanup on user removal.
type Memory struct {
	mu    sync.RWMutex
	files map[string]store.FileRecord
	users map[string]string
	// PingErr is returned by Ping when set.
	PingErr error
}

func NewMemory() *Memory {
	return &Memory{
		files: make(map[string]store.FileRecord),
		users: make(map[string]string),
	}
}

func (m *Memory) Ping(context.Context) error { return m.PingErr }

func (m *Memory) InsertFile(_ context.Context, rec store.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[rec.Identifier]; ok {
		return store.ErrDuplicateIdentifier
	}
	if rec.Data != nil {
		rec.Data = append([]byte(nil), rec.Data...)
	}
	m.files[rec.Identifier] = rec
	return nil
}

func (m *Memory) GetFile(_ context.Context, identifier string) (store.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[identifier]
	if !ok {
		return store.FileRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListIdentifiers(context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make(map[string]struct{}, len(m.files))
	for id := range m.files {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *Memory) ListStorageKeys(context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make(map[string]struct{})
	for _, rec := range m.files {
		if rec.StorageKey != nil {
			keys[*rec.StorageKey] = struct{}{}
		}
	}
	return keys, nil
}

// FileCount is a test helper.
func (m *Memory) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

func (m *Memory) ListCredentials(context.Context) ([]store.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]store.User, 0, len(m.users))
	for name, h := range m.users {
		users = append(users, store.User{Username: name, KeyHash: h})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *Memory) GetUser(_ context.Context, username string) (store.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.users[username]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return store.User{Username: username, KeyHash: h}, nil
}

func (m *Memory) ListUsernames(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.users))
	for name := range m.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) CreateUser(_ context.Context, username, keyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return store.ErrConflict
	}
	m.users[username] = keyHash
	return nil
}

func (m *Memory) UpdateUserKey(_ context.Context, username, keyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return store.ErrNotFound
	}
	m.users[username] = keyHash
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, username)
	for id, rec := range m.files {
		if rec.Uploader != nil && *rec.Uploader == username {
			rec.Uploader = nil
			m.files[id] = rec
		}
	}
	return nil
}

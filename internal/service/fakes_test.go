package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"filedrop/internal/auth"
	"filedrop/internal/store"
)

type memFiles struct {
	mu      sync.Mutex
	records map[string]store.FileRecord
	// dupNext makes the next n inserts fail as if another writer won the race.
	dupNext int
	failErr error
}

func newMemFiles() *memFiles {
	return &memFiles{records: make(map[string]store.FileRecord)}
}

func (m *memFiles) ListIdentifiers(context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.records))
	for id := range m.records {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *memFiles) InsertFile(_ context.Context, rec store.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	if m.dupNext > 0 {
		m.dupNext--
		return store.ErrDuplicateIdentifier
	}
	if _, ok := m.records[rec.Identifier]; ok {
		return store.ErrDuplicateIdentifier
	}
	m.records[rec.Identifier] = rec
	return nil
}

func (m *memFiles) GetFile(_ context.Context, id string) (store.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return store.FileRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *memFiles) Ping(context.Context) error { return nil }

func (m *memFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]string
	// afterFirstList, when set, replaces the table after the first credential read.
	afterFirstList map[string]string
	lists          int
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]string)}
}

// seed stores username with a hash of secret.
func (m *memUsers) seed(username, secret string) {
	h, err := auth.Hash(auth.SchemePBKDF2SHA256, secret)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	m.users[username] = h
	m.mu.Unlock()
}

func (m *memUsers) ListCredentials(context.Context) ([]store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.User, 0, len(m.users))
	for name, h := range m.users {
		out = append(out, store.User{Username: name, KeyHash: h})
	}
	m.lists++
	if m.lists == 1 && m.afterFirstList != nil {
		m.users = m.afterFirstList
	}
	return out, nil
}

func (m *memUsers) GetUser(_ context.Context, username string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.users[username]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return store.User{Username: username, KeyHash: h}, nil
}

func (m *memUsers) ListUsernames(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.users))
	for name := range m.users {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memUsers) CreateUser(_ context.Context, username, keyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return store.ErrConflict
	}
	m.users[username] = keyHash
	return nil
}

func (m *memUsers) UpdateUserKey(_ context.Context, username, keyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return store.ErrNotFound
	}
	m.users[username] = keyHash
	return nil
}

func (m *memUsers) DeleteUser(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, username)
	return nil
}

var errBoom = errors.New("boom")

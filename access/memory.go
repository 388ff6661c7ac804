package access

import (
	"bytes"
	"context"
	"sync"
)

// MemoryDirectory is a Directory kept in memory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryDirectory(users ...*User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]*User)}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put adds or replaces a user.
func (d *MemoryDirectory) Put(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *u
	d.users[u.ID] = &cp
}

func (d *MemoryDirectory) GetUser(_ context.Context, q Query) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if q.ID != "" {
		u, ok := d.users[q.ID]
		if !ok {
			return nil, ErrUserNotFound
		}
		cp := *u
		return &cp, nil
	}
	for _, u := range d.users {
		if (q.Email != "" && u.Email == q.Email) ||
			(len(q.TokenHash) > 0 && bytes.Equal(u.TokenHash, q.TokenHash)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

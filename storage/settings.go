package storage

import (
	"errors"
	"fmt"

	"github.com/garagevoting/garage-node/db"
	"github.com/garagevoting/garage-node/types"
)

// Settings returns the stored node settings, or ErrNotFound on a fresh
// database.
func (s *Storage) Settings() (*types.Settings, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	data, err := s.db.Get(settingsKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	st := &types.Settings{}
	if err := DecodeArtifact(data, st); err != nil {
		return nil, fmt.Errorf("could not decode settings: %w", err)
	}
	return st, nil
}

// SetSettings replaces the node settings.
func (s *Storage) SetSettings(st *types.Settings) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	data, err := EncodeArtifact(st)
	if err != nil {
		return err
	}
	return s.commit(func(wtx db.WriteTx) error {
		return wtx.Set(settingsKey, data)
	})
}

// FetchOrGenerateCipherSecret returns the stored vote cipher secret. When
// none exists, generate is called and its result persisted.
func (s *Storage) FetchOrGenerateCipherSecret(generate func() ([]byte, error)) ([]byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	secret, err := s.db.Get(cipherSecretKey)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("load cipher secret: %w", err)
	}
	if secret, err = generate(); err != nil {
		return nil, fmt.Errorf("could not generate cipher secret: %w", err)
	}
	if err := s.commit(func(wtx db.WriteTx) error {
		return wtx.Set(cipherSecretKey, secret)
	}); err != nil {
		return nil, fmt.Errorf("could not store cipher secret: %w", err)
	}
	return secret, nil
}

// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/glucobar/internal/config"
	"github.com/tomtom215/glucobar/internal/libreview"
	"github.com/tomtom215/glucobar/internal/logging"
)

const credentialsKey = "credentials:libreview"

// Credentials are the LibreView account login.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CredentialStore persists one set of credentials.
type CredentialStore interface {
	// Get returns libreview.ErrNoCredentials when nothing is stored.
	Get(ctx context.Context) (Credentials, error)
	Set(ctx context.Context, c Credentials) error
	Clear(ctx context.Context) error
}

// BadgerCredentialStore keeps credentials encrypted in BadgerDB.
type BadgerCredentialStore struct {
	db  *badger.DB
	enc *Encryptor
}

// OpenCredentialStore opens the store described by cfg. An empty path
// gives an in-memory database; if no secret is configured in that case a
// random one is generated, since nothing outlives the process anyway.
func OpenCredentialStore(cfg *config.CredentialsConfig) (*BadgerCredentialStore, error) {
	secret := cfg.Secret
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
		if secret == "" {
			var err error
			if secret, err = RandomSecret(); err != nil {
				return nil, fmt.Errorf("generate ephemeral secret: %w", err)
			}
		}
	}
	opts.Logger = nil

	enc, err := NewEncryptor(secret)
	if err != nil {
		return nil, err
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for credentials: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.Path == "").
		Msg("Credential store opened")
	return &BadgerCredentialStore{db: db, enc: enc}, nil
}

// Get loads and decrypts the stored credentials.
func (s *BadgerCredentialStore) Get(ctx context.Context) (Credentials, error) {
	var sealed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credentialsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return libreview.ErrNoCredentials
		}
		if err != nil {
			return fmt.Errorf("get credentials: %w", err)
		}
		sealed, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return Credentials{}, err
	}

	plain, err := s.enc.Open(sealed)
	if err != nil {
		// Unreadable under the current secret is the same as absent.
		logging.Ctx(ctx).Warn().Err(err).Msg("Stored credentials cannot be decrypted")
		return Credentials{}, &libreview.Error{Kind: libreview.KindNoCredentials, Op: "credentials", Err: err}
	}

	var c Credentials
	if err := json.Unmarshal(plain, &c); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	if c.Username == "" || c.Password == "" {
		return Credentials{}, libreview.ErrNoCredentials
	}
	return c, nil
}

// Set replaces the stored credentials.
func (s *BadgerCredentialStore) Set(ctx context.Context, c Credentials) error {
	if c.Username == "" || c.Password == "" {
		return errors.New("username and password are required")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	sealed, err := s.enc.Seal(data)
	if err != nil {
		return err
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(credentialsKey), sealed)
	}); err != nil {
		return fmt.Errorf("set credentials: %w", err)
	}
	logging.Ctx(ctx).Info().Str("username", MaskUsername(c.Username)).Msg("Credentials stored")
	return nil
}

// Clear removes the stored credentials. Clearing an empty store is not an
// error.
func (s *BadgerCredentialStore) Clear(ctx context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(credentialsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	logging.Ctx(ctx).Info().Msg("Credentials cleared")
	return nil
}

// Close closes the underlying database.
func (s *BadgerCredentialStore) Close() error {
	return s.db.Close()
}

package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"os"
	"path/filepath"
)

// BootstrapUser seeds an initial account when the user table is empty, so a
// fresh deployment has something to log in with. It is idempotent: if any
// user exists, it does nothing. The generated password is hashed with the
// same salted scheme the verifier checks.
func BootstrapUser(ctx context.Context, repo UserRepository, cfg Config) error {
	if !cfg.BootstrapUserEnabled {
		return nil
	}

	has, err := repo.HasAny(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	username := "admin"
	password, err := generatePassword(32)
	if err != nil {
		return err
	}
	salt, err := GenerateSalt()
	if err != nil {
		return err
	}

	// Record the secret before inserting the row. The other order can leave
	// an account behind whose password was never written anywhere: the write
	// fails, startup aborts, and the next run sees a non-empty table and
	// skips bootstrap entirely.
	if cfg.InitialUserPasswordPath != "" {
		if err := writePasswordFile(cfg.InitialUserPasswordPath, password); err != nil {
			return err
		}
	}

	if _, err := repo.Create(ctx, username, HashPassword(password, salt), salt); err != nil {
		if cfg.InitialUserPasswordPath != "" {
			os.Remove(cfg.InitialUserPasswordPath)
		}
		return err
	}

	if cfg.InitialUserPasswordPath != "" {
		log.Printf("initial user created; credentials written to %s", cfg.InitialUserPasswordPath)
	} else {
		log.Printf("initial user created username=%s password=%s", username, password)
	}

	return nil
}

// writePasswordFile writes the generated password, creating the secrets
// directory if the host has not provisioned it yet.
func writePasswordFile(path, password string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(password+"\n"), 0o600)
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}

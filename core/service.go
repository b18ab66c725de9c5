package core

import (
	"context"
	"fmt"
	"strings"
)

// UserService defines the auth-facing operations over the user directory.
type UserService interface {
	// Login verifies a credential pair and returns the matching user.
	// Bad credentials yield ErrInvalidCredentials; a directory failure is
	// returned wrapped so the boundary can log it and answer opaquely.
	Login(ctx context.Context, username, password string) (User, error)

	// FindUserByID returns the user with the given id, ErrNotFound on a
	// miss, or the wrapped directory error.
	FindUserByID(ctx context.Context, id int64) (User, error)
}

// DirectoryUserService wires the user directory and credential verification
// together. It holds no mutable state and is safe for concurrent use.
type DirectoryUserService struct {
	users UserRepository
}

func NewDirectoryUserService(users UserRepository) *DirectoryUserService {
	return &DirectoryUserService{users: users}
}

func (s *DirectoryUserService) Login(ctx context.Context, username, password string) (User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return User{}, fmt.Errorf("directory lookup for login: %w", err)
	}
	if u == nil {
		return User{}, ErrInvalidCredentials
	}
	if !VerifyPassword(password, u.PasswordHash, u.Salt) {
		return User{}, ErrInvalidCredentials
	}
	return u.User(), nil
}

func (s *DirectoryUserService) FindUserByID(ctx context.Context, id int64) (User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("directory lookup for id %d: %w", id, err)
	}
	if u == nil {
		return User{}, fmt.Errorf("user with id %d %w", id, ErrNotFound)
	}
	return u.User(), nil
}

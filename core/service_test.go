package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readFileTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// fakeUserRepo is an in-memory user directory for service tests.
type fakeUserRepo struct {
	byUsername map[string]*UserRecord
	err        error
	nextID     int64
}

func newFakeUserRepo(records ...*UserRecord) *fakeUserRepo {
	r := &fakeUserRepo{byUsername: map[string]*UserRecord{}, nextID: 1}
	for _, rec := range records {
		r.byUsername[rec.Username] = rec
		if rec.ID >= r.nextID {
			r.nextID = rec.ID + 1
		}
	}
	return r
}

func (r *fakeUserRepo) FindByUsername(_ context.Context, username string) (*UserRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.byUsername[username], nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id int64) (*UserRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, rec := range r.byUsername {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) Create(_ context.Context, username, passwordHash, salt string) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	id := r.nextID
	r.nextID++
	r.byUsername[username] = &UserRecord{ID: id, Username: username, PasswordHash: passwordHash, Salt: salt}
	return id, nil
}

func (r *fakeUserRepo) HasAny(_ context.Context) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return len(r.byUsername) > 0, nil
}

func seededRepo() *fakeUserRepo {
	return newFakeUserRepo(&UserRecord{
		ID:           1,
		Username:     "alice",
		PasswordHash: HashPassword("secret", "salt1"),
		Salt:         "salt1",
	})
}

func TestLoginSuccess(t *testing.T) {
	svc := NewDirectoryUserService(seededRepo())
	u, err := svc.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if u.ID != 1 || u.Username != "alice" {
		t.Fatalf("wrong user returned: %+v", u)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc := NewDirectoryUserService(seededRepo())
	if _, err := svc.Login(context.Background(), "mallory", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := NewDirectoryUserService(seededRepo())
	if _, err := svc.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginErrorsAreUniform(t *testing.T) {
	svc := NewDirectoryUserService(seededRepo())
	_, errUnknown := svc.Login(context.Background(), "mallory", "secret")
	_, errWrong := svc.Login(context.Background(), "alice", "wrong")
	if errUnknown == nil || errWrong == nil || errUnknown.Error() != errWrong.Error() {
		t.Fatalf("unknown-user and wrong-password errors differ: %v vs %v", errUnknown, errWrong)
	}
}

func TestLoginEmptyCredentials(t *testing.T) {
	svc := NewDirectoryUserService(seededRepo())
	if _, err := svc.Login(context.Background(), "", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty username, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}
}

func TestLoginDirectoryFailure(t *testing.T) {
	repo := seededRepo()
	repo.err = errors.New("connection refused")
	svc := NewDirectoryUserService(repo)

	_, err := svc.Login(context.Background(), "alice", "secret")
	if err == nil {
		t.Fatalf("expected error on directory failure")
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("directory failure reported as bad credentials: %v", err)
	}
	if !errors.Is(err, repo.err) {
		t.Fatalf("directory cause not wrapped: %v", err)
	}
}

func TestFindUserByID(t *testing.T) {
	svc := NewDirectoryUserService(seededRepo())
	u, err := svc.FindUserByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("FindUserByID error: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("wrong user: %+v", u)
	}
}

func TestFindUserByIDNotFound(t *testing.T) {
	svc := NewDirectoryUserService(seededRepo())
	_, err := svc.FindUserByID(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "42") {
		t.Fatalf("not-found message does not carry the id: %q", err.Error())
	}
}

func TestFindUserByIDDirectoryFailure(t *testing.T) {
	repo := seededRepo()
	repo.err = errors.New("connection refused")
	svc := NewDirectoryUserService(repo)

	_, err := svc.FindUserByID(context.Background(), 1)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("directory failure must not look like a miss: %v", err)
	}
}

func TestBootstrapUserSeedsVerifiableCredential(t *testing.T) {
	repo := newFakeUserRepo()
	dir := t.TempDir()
	cfg := Config{
		BootstrapUserEnabled:    true,
		InitialUserPasswordPath: dir + "/initial_password",
	}

	if err := BootstrapUser(context.Background(), repo, cfg); err != nil {
		t.Fatalf("BootstrapUser error: %v", err)
	}
	rec := repo.byUsername["admin"]
	if rec == nil {
		t.Fatalf("no admin user created")
	}

	data, err := readFileTrimmed(cfg.InitialUserPasswordPath)
	if err != nil {
		t.Fatalf("read generated password: %v", err)
	}
	if !VerifyPassword(data, rec.PasswordHash, rec.Salt) {
		t.Fatalf("generated password does not verify against stored hash")
	}

	// Idempotent: a second run must not add users.
	if err := BootstrapUser(context.Background(), repo, cfg); err != nil {
		t.Fatalf("second BootstrapUser error: %v", err)
	}
	if len(repo.byUsername) != 1 {
		t.Fatalf("bootstrap not idempotent, %d users", len(repo.byUsername))
	}
}

func TestBootstrapUserProvisionsSecretsDir(t *testing.T) {
	repo := newFakeUserRepo()
	// The secrets directory does not exist yet, as on a fresh host.
	path := filepath.Join(t.TempDir(), "accounts-secrets", "initial_user_password.secret")
	cfg := Config{BootstrapUserEnabled: true, InitialUserPasswordPath: path}

	if err := BootstrapUser(context.Background(), repo, cfg); err != nil {
		t.Fatalf("BootstrapUser error: %v", err)
	}
	rec := repo.byUsername["admin"]
	if rec == nil {
		t.Fatalf("no admin user created")
	}
	password, err := readFileTrimmed(path)
	if err != nil {
		t.Fatalf("read generated password: %v", err)
	}
	if !VerifyPassword(password, rec.PasswordHash, rec.Salt) {
		t.Fatalf("generated password does not verify against stored hash")
	}
}

func TestBootstrapUserFailedSecretWriteLeavesNoUser(t *testing.T) {
	repo := newFakeUserRepo()
	// A regular file where the secrets directory should be makes the
	// password write fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("seed blocker file: %v", err)
	}
	cfg := Config{
		BootstrapUserEnabled:    true,
		InitialUserPasswordPath: filepath.Join(blocker, "initial_password"),
	}

	if err := BootstrapUser(context.Background(), repo, cfg); err == nil {
		t.Fatalf("expected error when the password file cannot be written")
	}
	// The account must not exist: nobody would ever learn its password, and
	// a non-empty table makes the next bootstrap run skip itself.
	if len(repo.byUsername) != 0 {
		t.Fatalf("user persisted despite unrecorded password")
	}
}

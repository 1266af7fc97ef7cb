// Package users manages the account collection referenced by the soldBy and
// audit user fields. Passwords are bcrypt-hashed at rest.
package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"pharmastore/backend/internal/domain"
	"pharmastore/backend/internal/storage"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Store struct {
	mu      sync.RWMutex
	users   []domain.User
	storage storage.Store
}

// New loads the collection, seeding the default admin/user pair on first run.
// Seed credentials come from SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD; dev
// defaults are used (with a warning) when unset.
func New(ctx context.Context, st storage.Store) (*Store, error) {
	s := &Store{storage: st}
	if _, err := st.Load(ctx, storage.KeyUsers, &s.users); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if len(s.users) == 0 {
		s.users = seedUsers()
		if err := st.Save(ctx, storage.KeyUsers, s.users); err != nil {
			log.Printf("[users] WARN: failed to persist seed users: %v", err)
		}
	}
	return s, nil
}

func seedUsers() []domain.User {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "password123")
	userPwd := envOr("SEED_USER_PASSWORD", "user123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_USER_PASSWORD") == "" {
		log.Println("[users] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD to override.")
	}

	out := make([]domain.User, 0, 2)
	for _, u := range []struct {
		username string
		password string
		userType string
	}{
		{"admin", adminPwd, domain.UserTypeAdmin},
		{"user", userPwd, domain.UserTypeUser},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[users] failed to hash seed password for %s: %v", u.username, err)
		}
		out = append(out, domain.User{Username: u.username, Password: string(hash), Type: u.userType})
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) persistLocked(ctx context.Context) {
	if err := s.storage.Save(ctx, storage.KeyUsers, s.users); err != nil {
		log.Printf("[users] WARN: failed to persist users: %v", err)
	}
}

// verify accepts bcrypt hashes and, for records imported from older
// deployments that stored plaintext, falls back to a constant-time compare.
func verify(stored, password string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

func (s *Store) Authenticate(username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username != username {
			continue
		}
		if !verify(u.Password, password) {
			return domain.User{}, ErrInvalidCredentials
		}
		return u, nil
	}
	return domain.User{}, ErrInvalidCredentials
}

// Add creates an account with a hashed password. Duplicate usernames and
// unknown account types fail validation.
func (s *Store) Add(ctx context.Context, username, password, userType string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	if userType != domain.UserTypeAdmin && userType != domain.UserTypeUser {
		return domain.User{}, fmt.Errorf("%w: user type must be %q or %q", domain.ErrValidation, domain.UserTypeAdmin, domain.UserTypeUser)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return domain.User{}, fmt.Errorf("%w: username %q already exists", domain.ErrValidation, username)
		}
	}

	user := domain.User{Username: username, Password: string(hash), Type: userType}
	s.users = append(s.users, user)
	s.persistLocked(ctx)
	return user, nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *Store) ChangePassword(ctx context.Context, username, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].Username != username {
			continue
		}
		if !verify(s.users[i].Password, current) {
			return ErrInvalidCredentials
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		s.users[i].Password = string(hash)
		s.persistLocked(ctx)
		return nil
	}
	return fmt.Errorf("%w: user %s", domain.ErrNotFound, username)
}

// List returns accounts with password hashes stripped.
func (s *Store) List() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		u.Password = ""
		out = append(out, u)
	}
	return out
}

// Export returns the raw collection, hashes included, for sync and backup.
func (s *Store) Export() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, len(s.users))
	copy(out, s.users)
	return out
}

// Replace swaps in a whole new collection (sync pull and import paths).
func (s *Store) Replace(ctx context.Context, users []domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make([]domain.User, len(users))
	copy(s.users, users)
	s.persistLocked(ctx)
}

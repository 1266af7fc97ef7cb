package users

import (
	"context"
	"errors"
	"testing"

	"pharmastore/backend/internal/domain"
	"pharmastore/backend/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), storage.NewMemory())
	if err != nil {
		t.Fatalf("new users: %v", err)
	}
	return s
}

func TestSeedsDefaultAccountsOnFirstRun(t *testing.T) {
	s := newTestStore(t)

	admin, err := s.Authenticate("admin", "password123")
	if err != nil {
		t.Fatalf("seeded admin login failed: %v", err)
	}
	if admin.Type != domain.UserTypeAdmin {
		t.Fatalf("expected admin type, got %q", admin.Type)
	}
	if _, err := s.Authenticate("user", "user123"); err != nil {
		t.Fatalf("seeded user login failed: %v", err)
	}
}

func TestSeedPasswordsComeFromEnv(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "very-secret-admin")
	t.Setenv("SEED_USER_PASSWORD", "very-secret-user")
	s := newTestStore(t)

	if _, err := s.Authenticate("admin", "very-secret-admin"); err != nil {
		t.Fatalf("env-seeded admin login failed: %v", err)
	}
	if _, err := s.Authenticate("admin", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("default password must not work when overridden, got %v", err)
	}
}

func TestSeedingSkippedWhenUsersExist(t *testing.T) {
	st := storage.NewMemory()
	existing := []domain.User{{Username: "solo", Password: "plain-secret", Type: domain.UserTypeAdmin}}
	if err := st.Save(context.Background(), storage.KeyUsers, existing); err != nil {
		t.Fatalf("save: %v", err)
	}

	s, err := New(context.Background(), st)
	if err != nil {
		t.Fatalf("new users: %v", err)
	}
	if got := len(s.Export()); got != 1 {
		t.Fatalf("expected only the existing account, got %d", got)
	}
	if _, err := s.Authenticate("admin", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("seed accounts must not exist, got %v", err)
	}
}

func TestAuthenticateLegacyPlaintextRecords(t *testing.T) {
	st := storage.NewMemory()
	legacy := []domain.User{{Username: "old", Password: "imported-plain", Type: domain.UserTypeUser}}
	if err := st.Save(context.Background(), storage.KeyUsers, legacy); err != nil {
		t.Fatalf("save: %v", err)
	}
	s, err := New(context.Background(), st)
	if err != nil {
		t.Fatalf("new users: %v", err)
	}

	if _, err := s.Authenticate("old", "imported-plain"); err != nil {
		t.Fatalf("legacy plaintext login failed: %v", err)
	}
	if _, err := s.Authenticate("old", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestAddRejectsDuplicatesAndBadTypes(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Add(context.Background(), "admin", "whatever", domain.UserTypeAdmin); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("duplicate username: expected validation error, got %v", err)
	}
	if _, err := s.Add(context.Background(), "fresh", "pw", "superuser"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad type: expected validation error, got %v", err)
	}
	if _, err := s.Add(context.Background(), "", "pw", domain.UserTypeUser); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty username: expected validation error, got %v", err)
	}

	created, err := s.Add(context.Background(), "cashier", "pw-secret", domain.UserTypeUser)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if created.Password == "pw-secret" {
		t.Fatalf("password stored unhashed")
	}
	if _, err := s.Authenticate("cashier", "pw-secret"); err != nil {
		t.Fatalf("new account login failed: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	s := newTestStore(t)

	if err := s.ChangePassword(context.Background(), "admin", "wrong", "next"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: expected invalid credentials, got %v", err)
	}
	if err := s.ChangePassword(context.Background(), "ghost", "x", "y"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown user: expected not found, got %v", err)
	}
	if err := s.ChangePassword(context.Background(), "admin", "password123", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty new password: expected validation error, got %v", err)
	}

	if err := s.ChangePassword(context.Background(), "admin", "password123", "rotated-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := s.Authenticate("admin", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := s.Authenticate("admin", "rotated-pass"); err != nil {
		t.Fatalf("new password login failed: %v", err)
	}
}

func TestListStripsPasswordsButExportKeepsThem(t *testing.T) {
	s := newTestStore(t)

	for _, u := range s.List() {
		if u.Password != "" {
			t.Fatalf("List leaked a password hash for %s", u.Username)
		}
	}
	for _, u := range s.Export() {
		if u.Password == "" {
			t.Fatalf("Export must keep hashes for sync, %s is empty", u.Username)
		}
	}
}

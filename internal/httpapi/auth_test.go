package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/store"
)

type accountStoreStub struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]domain.UserAccount
	stores map[string]domain.Store
}

func (s *accountStoreStub) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Email]; exists {
		return nil, store.ErrInvalidRequest
	}
	s.nextID++
	user.ID = s.nextID
	s.users[user.Email] = user
	return &user, nil
}

func (s *accountStoreStub) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *accountStoreStub) GetStoreByEmail(_ context.Context, email string) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func TestRegisterStoresPasswordHash(t *testing.T) {
	accounts := &accountStoreStub{}
	manager := NewAuthManager("test-secret", time.Hour, accounts)

	resp, err := manager.Register(context.Background(), domain.RegisterRequest{
		Name:     "Asha",
		Email:    " Asha@Example.com ",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if resp.Role != domain.RoleUser {
		t.Fatalf("expected USER role, got %s", resp.Role)
	}
	if resp.Email != "asha@example.com" {
		t.Fatalf("expected normalized email, got %s", resp.Email)
	}

	saved := accounts.users["asha@example.com"]
	if saved.PasswordHash == "pass1234" {
		t.Fatalf("expected password to be hashed")
	}
	if !strings.HasPrefix(saved.PasswordHash, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.PasswordHash)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Email: "asha@example.com", Password: "pass1234"}); err != nil {
		t.Fatalf("login after register failed: %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &accountStoreStub{})

	_, err := manager.Register(context.Background(), domain.RegisterRequest{Name: "A", Email: "a@example.com", Password: "123"})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestLoginFallsBackToStoreCredentials(t *testing.T) {
	hash, err := hashPassword("store-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	accounts := &accountStoreStub{
		stores: map[string]domain.Store{
			"kathgodam@medimitra.com": {ID: 7, Name: "Kathgodam", Email: "kathgodam@medimitra.com", PasswordHash: hash},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, accounts)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Email: "kathgodam@medimitra.com", Password: "store-pass"})
	if err != nil {
		t.Fatalf("store login failed: %v", err)
	}
	if resp.Role != domain.RoleStore || resp.StoreID != 7 {
		t.Fatalf("expected STORE role bound to store 7, got %s/%d", resp.Role, resp.StoreID)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.StoreID != 7 || actor.Role != domain.RoleStore {
		t.Fatalf("unexpected actor %+v", actor)
	}

	_, err = manager.Login(context.Background(), domain.LoginRequest{Email: "kathgodam@medimitra.com", Password: "nope"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	accounts := &accountStoreStub{}
	issuer := NewAuthManager("secret-one", time.Hour, accounts)
	verifier := NewAuthManager("secret-two", time.Hour, accounts)

	resp, err := issuer.Register(context.Background(), domain.RegisterRequest{Name: "B", Email: "b@example.com", Password: "pass1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestVerifyPasswordRejectsPlainStoredValue(t *testing.T) {
	if verifyPassword("admin123", "admin123") {
		t.Fatalf("expected non-bcrypt stored value to be rejected")
	}
}

package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	accounts AccountStore
}

// AccountStore is the slice of the repository login and registration need.
type AccountStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetStoreByEmail(ctx context.Context, email string) (*domain.Store, error)
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	UserID  int64  `json:"uid"`
	Role    string `json:"role"`
	StoreID int64  `json:"sid,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, accounts AccountStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		accounts: accounts,
	}
}

// Register creates a USER account and signs it in.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.LoginResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return domain.LoginResponse{}, fmt.Errorf("%w: name is required", store.ErrInvalidRequest)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.LoginResponse{}, fmt.Errorf("%w: email is invalid", store.ErrInvalidRequest)
	}
	if len(req.Password) < 6 {
		return domain.LoginResponse{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidRequest)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	user, err := a.accounts.CreateUser(ctx, domain.UserAccount{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	})
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return a.issue(domain.Actor{UserID: user.ID, Email: user.Email, Role: user.Role}, user.Name)
}

// Login checks user accounts first, then store credentials.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	user, err := a.accounts.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !verifyPassword(user.PasswordHash, req.Password) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		actor := domain.Actor{UserID: user.ID, Email: user.Email, Role: user.Role}
		if user.StoreID != nil {
			actor.StoreID = *user.StoreID
		}
		return a.issue(actor, user.Name)
	case !errors.Is(err, store.ErrNotFound):
		return domain.LoginResponse{}, err
	}

	st, err := a.accounts.GetStoreByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(st.PasswordHash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	return a.issue(domain.Actor{Email: st.Email, Role: domain.RoleStore, StoreID: st.ID}, st.Name)
}

func (a *AuthManager) issue(actor domain.Actor, name string) (domain.LoginResponse, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(actor, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		UserID:      actor.UserID,
		Name:        name,
		Email:       actor.Email,
		Role:        actor.Role,
		StoreID:     actor.StoreID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("medimitra"))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.Role == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{UserID: claims.UserID, Email: sub, Role: claims.Role, StoreID: claims.StoreID}, nil
}

func (a *AuthManager) sign(actor domain.Actor, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.Email,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "medimitra",
		},
		UserID:  actor.UserID,
		Role:    actor.Role,
		StoreID: actor.StoreID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

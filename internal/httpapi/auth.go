package httpapi

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrEmployeeExists     = errors.New("email already registered")
	ErrEmployeeNotFound   = errors.New("employee not found")
)

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, email string, password string) error
	DeleteUser(ctx context.Context, email string) error
}

type credential struct {
	name     string
	password string
	role     string
	active   bool
	created  time.Time
}

type shopClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	manager.bootstrapUsers(ctx)
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	email := normalizeEmail(req.Email)
	a.mu.RLock()
	cred, ok := a.users[email]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	if !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(email, cred, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		Name:        cred.name,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &shopClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if claims.Role != domain.RoleAdmin && claims.Role != domain.RoleEmployee {
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(email string, cred credential, expiresAt time.Time) (string, error) {
	claims := shopClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "shopdesk",
		},
		Role: cred.role,
		Name: cred.name,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// CreateEmployee registers a new employee account. The request is expected
// to have passed struct validation already.
func (a *AuthManager) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	a.bootstrapUsers(ctx)
	email := normalizeEmail(req.Email)

	a.mu.RLock()
	_, exists := a.users[email]
	a.mu.RUnlock()
	if exists {
		return domain.Employee{}, ErrEmployeeExists
	}

	now := time.Now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.Employee{}, errors.New("failed to hash password")
	}
	name := strings.TrimSpace(req.Name)

	if a.userStore != nil {
		err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Email:     email,
			Name:      name,
			Password:  passwordHash,
			Role:      domain.RoleEmployee,
			Active:    true,
			CreatedAt: now,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Employee{}, ErrEmployeeExists
		}
		if err != nil {
			return domain.Employee{}, err
		}
	}

	a.mu.Lock()
	a.users[email] = credential{
		name:     name,
		password: passwordHash,
		role:     domain.RoleEmployee,
		active:   true,
		created:  now,
	}
	a.mu.Unlock()

	return domain.Employee{
		Email:     email,
		Name:      name,
		Role:      domain.RoleEmployee,
		Active:    true,
		CreatedAt: now,
	}, nil
}

func (a *AuthManager) ListEmployees(ctx context.Context) []domain.Employee {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	result := make([]domain.Employee, 0, len(a.users))
	for email, user := range a.users {
		if user.role != domain.RoleEmployee {
			continue
		}
		result = append(result, domain.Employee{
			Email:     email,
			Name:      user.name,
			Role:      user.role,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Email < result[j].Email
	})
	return result
}

// DeleteEmployee removes an employee account. Admin accounts cannot be
// removed this way.
func (a *AuthManager) DeleteEmployee(ctx context.Context, email string) error {
	a.bootstrapUsers(ctx)
	email = normalizeEmail(email)

	a.mu.RLock()
	cred, ok := a.users[email]
	a.mu.RUnlock()
	if !ok || cred.role != domain.RoleEmployee {
		return ErrEmployeeNotFound
	}

	if a.userStore != nil {
		err := a.userStore.DeleteUser(ctx, email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	a.mu.Lock()
	delete(a.users, email)
	a.mu.Unlock()
	return nil
}

// bootstrapUsers replaces the credential cache with the accounts in the
// user store, upgrading any plain-text password to a bcrypt hash on the way.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return
	}

	loaded := make(map[string]credential, len(users))
	for _, user := range users {
		email := normalizeEmail(user.Email)
		if email == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, email, hashed)
			}
		}
		loaded[email] = credential{
			name:     user.Name,
			password: password,
			role:     user.Role,
			active:   user.Active,
			created:  user.CreatedAt,
		}
	}

	a.mu.Lock()
	a.users = loaded
	a.mu.Unlock()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
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

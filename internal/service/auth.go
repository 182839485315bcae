package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"license-service/internal/model"
	"license-service/pkg/jwtutil"
	"license-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var errInvalidCredentials = &PolicyError{
	Code:       CodeUnauthorized,
	Message:    "invalid credentials",
	HTTPStatus: http.StatusUnauthorized,
}

// AuthService registers users and issues tokens for the license API
type AuthService struct {
	users Users
	jwt   *jwtutil.JWTUtil
	cost  int
	log   *zap.Logger

	// compared against on unknown emails so both login failures cost a bcrypt round
	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(users Users, jwt *jwtutil.JWTUtil, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{users: users, jwt: jwt, cost: bcrypt.DefaultCost, log: log}
}

// AuthResult is returned on successful login or registration
type AuthResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (a *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := a.createUser(ctx, email, password, model.RoleUser)
	if err != nil {
		return nil, err
	}
	return a.issue(u)
}

func (a *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := a.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, model.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(a.dummy(), []byte(password))
		prometheus.RecordAuthError("user_not_found")
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return nil, errInvalidCredentials
	}

	a.log.Info("User logged in", zap.Uint("user_id", u.ID), zap.String("role", u.Role))
	return a.issue(u)
}

func (a *AuthService) dummy() []byte {
	a.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("license-service-dummy-password"), a.cost)
		if err != nil {
			a.log.Error("Failed to build dummy password hash", zap.Error(err))
			return
		}
		a.dummyHash = hash
	})
	return a.dummyHash
}

// EnsureAdmin creates the bootstrap administrator when no account with that
// email exists. An existing account is left untouched.
func (a *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := a.users.FindByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}
	if _, err := a.createUser(ctx, email, password, model.RoleAdmin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	a.log.Info("Bootstrap admin created", zap.String("email", normalizeEmail(email)))
	return nil
}

func (a *AuthService) createUser(ctx context.Context, email, password, role string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, inputError(CodeValidation, "a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, inputError(CodeValidation, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{Email: email, Password: string(hash), Role: role}
	if err := a.users.Create(ctx, u); err != nil {
		if errors.Is(err, model.ErrDuplicateKey) {
			return nil, &PolicyError{Code: CodeEmailTaken, Message: "email already registered", HTTPStatus: http.StatusConflict}
		}
		return nil, err
	}
	return u, nil
}

func (a *AuthService) issue(u *model.User) (*AuthResult, error) {
	token, err := a.jwt.GenerateToken(u.Email, u.ID, u.Role)
	if err != nil {
		prometheus.RecordAuthError("token_generation_failed")
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{Token: token, User: u}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Package services – AuthService
//
// AuthService owns user accounts: registration with a bcrypt-hashed
// password, login, and the HS256 bearer tokens that middleware.Auth
// accepts on the resource routes.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/repo"
)

// Password length bounds; bcrypt ignores input past 72 bytes.
const (
	MinPasswordLen = 6
	MaxPasswordLen = 72
)

// Account errors.
var (
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = fmt.Errorf("password must be %d to %d characters", MinPasswordLen, MaxPasswordLen)
)

var errNoSigningKey = errors.New("auth: no signing key configured")

// TokenClaims is the payload of issued tokens. The JSON names match the
// claims middleware.Auth reads.
type TokenClaims struct {
	UserID string      `json:"uid"`
	Email  string      `json:"email,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email    string
	Password string
	Name     *string
	Phone    *string
}

// Session is returned by Register and Login.
type Session struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// AuthService registers and authenticates users.
type AuthService struct {
	DB     *gorm.DB
	Secret []byte
	Issuer string
	TTL    time.Duration

	// Cost is the bcrypt work factor.
	Cost int

	now func() time.Time
}

// NewAuthService returns a service signing tokens with secret that expire
// after ttl.
func NewAuthService(db *gorm.DB, secret, issuer string, ttl time.Duration) *AuthService {
	return &AuthService{
		DB:     db,
		Secret: []byte(secret),
		Issuer: issuer,
		TTL:    ttl,
		Cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and signs the user in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if n := len(in.Password); n < MinPasswordLen || n > MaxPasswordLen {
		return nil, ErrWeakPassword
	}
	if in.Phone != nil {
		p := domain.NormalizePhone(*in.Phone)
		if !domain.ValidPhone(p) {
			return nil, ErrInvalidPhone
		}
		in.Phone = &p
	}

	switch _, err := repo.GetUserByEmail(ctx, s.DB, email); {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.Cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := repo.CreateUser(ctx, s.DB, repo.NewUser{
		Email:        email,
		PasswordHash: string(hash),
		Name:         in.Name,
		Phone:        in.Phone,
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	return s.session(u)
}

// Login checks the password and issues a fresh token. Unknown emails and
// wrong passwords are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := repo.GetUserByEmail(ctx, s.DB, NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// Me returns the account behind a token subject.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUserByID(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *AuthService) session(u *domain.User) (*Session, error) {
	if len(s.Secret) == 0 {
		return nil, errNoSigningKey
	}
	now := s.now()
	exp := now.Add(s.TTL)
	claims := TokenClaims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{User: u, Token: tok, ExpiresAt: exp}, nil
}

func validEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/repo"
)

const testSecret = "test-secret"

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	s := NewAuthService(newServiceDB(t), testSecret, "donations", time.Hour)
	s.Cost = bcrypt.MinCost
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestRegister_HashesPasswordAndIssuesToken(t *testing.T) {
	s := newTestAuthService(t)
	ctx := context.Background()
	name := "Ada"

	sess, err := s.Register(ctx, RegisterInput{Email: "  Ada@Example.COM ", Password: "s3cret!", Name: &name})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.User.Email != "ada@example.com" || sess.User.Role != domain.RoleUser {
		t.Fatalf("unexpected user: %+v", sess.User)
	}
	if !sess.ExpiresAt.Equal(s.now().Add(time.Hour)) {
		t.Fatalf("expires_at = %v", sess.ExpiresAt)
	}

	stored, err := repo.GetUserByID(ctx, s.DB, sess.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if stored.PasswordHash == "s3cret!" {
		t.Fatal("password stored in clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret!")); err != nil {
		t.Fatalf("stored hash does not match: %v", err)
	}

	claims := &TokenClaims{}
	_, err = jwt.ParseWithClaims(sess.Token, claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer("donations"))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != sess.User.ID || claims.Subject != sess.User.ID || claims.Email != "ada@example.com" || claims.Role != domain.RoleUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRegister_Rejections(t *testing.T) {
	s := newTestAuthService(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, RegisterInput{Email: "taken@example.com", Password: "123456"}); err != nil {
		t.Fatalf("seed Register: %v", err)
	}
	badPhone := "12ab"

	cases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"duplicate email, other case", RegisterInput{Email: "TAKEN@example.com", Password: "123456"}, ErrEmailTaken},
		{"no at sign", RegisterInput{Email: "nobody", Password: "123456"}, ErrInvalidEmail},
		{"empty email", RegisterInput{Email: " ", Password: "123456"}, ErrInvalidEmail},
		{"short password", RegisterInput{Email: "a@example.com", Password: "12345"}, ErrWeakPassword},
		{"long password", RegisterInput{Email: "a@example.com", Password: strings.Repeat("x", MaxPasswordLen+1)}, ErrWeakPassword},
		{"bad phone", RegisterInput{Email: "a@example.com", Password: "123456", Phone: &badPhone}, ErrInvalidPhone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Register(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}

	var n int64
	if err := s.DB.Model(&domain.User{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the seed user, got %d rows", n)
	}
}

func TestLogin(t *testing.T) {
	s := newTestAuthService(t)
	ctx := context.Background()
	reg, err := s.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "s3cret!"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	sess, err := s.Login(ctx, "ADA@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.User.ID != reg.User.ID || sess.Token == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	if _, err := s.Login(ctx, "ada@example.com", "wrong!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Login(ctx, "ghost@example.com", "s3cret!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: want ErrInvalidCredentials, got %v", err)
	}
}

func TestMe(t *testing.T) {
	s := newTestAuthService(t)
	ctx := context.Background()
	reg, err := s.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "s3cret!"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	u, err := s.Me(ctx, reg.User.ID)
	if err != nil || u.Email != "ada@example.com" {
		t.Fatalf("Me: u=%+v err=%v", u, err)
	}
	if _, err := s.Me(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
}

func TestRegister_NoSigningKey(t *testing.T) {
	s := newTestAuthService(t)
	s.Secret = nil
	if _, err := s.Register(context.Background(), RegisterInput{Email: "ada@example.com", Password: "s3cret!"}); err == nil {
		t.Fatal("expected an error without a signing key")
	}
}

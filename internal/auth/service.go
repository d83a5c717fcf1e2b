package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classroll/internal/apperr"
	"classroll/internal/policy"
)

// User is an account row; students, teachers and admins share the table.
type User struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      policy.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// Service authenticates users and manages refresh tokens.
type Service struct {
	db         *sql.DB
	issuer     string
	signingKey string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService creates the auth service.
func NewService(db *sql.DB, issuer, signingKey string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		db:         db,
		issuer:     issuer,
		signingKey: signingKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Login verifies email+password and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (User, TokenPair, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE email = $1
	`, email)
	var usr User
	var hash string
	if err := row.Scan(&usr.ID, &usr.Name, &usr.Email, &hash, &usr.Role, &usr.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, TokenPair{}, apperr.New(apperr.KindNotFound, "unknown email or wrong password")
		}
		return User{}, TokenPair{}, apperr.Wrap(apperr.KindStorage, "user lookup failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return User{}, TokenPair{}, apperr.New(apperr.KindNotFound, "unknown email or wrong password")
	}

	tokens, err := Issue(usr.ID, usr.Role, s.issuer, s.signingKey, s.accessTTL, s.refreshTTL)
	if err != nil {
		return User{}, TokenPair{}, apperr.Wrap(apperr.KindStorage, "token issue failed", err)
	}
	if err := s.saveRefreshToken(ctx, usr.ID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		return User{}, TokenPair{}, err
	}
	return usr, tokens, nil
}

// CreateUser inserts an account with a bcrypt-hashed password. Used by the
// admin student-management endpoints and by seed tooling.
func (s *Service) CreateUser(ctx context.Context, name, email, password string, role policy.Role) (User, error) {
	if !role.Valid() {
		return User{}, apperr.Newf(apperr.KindValidation, "unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, apperr.Wrap(apperr.KindStorage, "password hash failed", err)
	}
	usr := User{ID: uuid.NewString(), Name: name, Email: email, Role: role}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, usr.ID, usr.Name, usr.Email, string(hash), usr.Role)
	if err := row.Scan(&usr.CreatedAt); err != nil {
		return User{}, apperr.Wrap(apperr.KindStorage, "user insert failed", err)
	}
	return usr, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "refresh token save failed", err)
	}
	return nil
}

// RevokeRefreshToken marks a token revoked.
func (s *Service) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "refresh token revoke failed", err)
	}
	return nil
}

// Package auth validates the bearer tokens that authenticate stream sessions.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const TokenExpiry = 30 * 24 * time.Hour

// ScopeStream is required to open a result stream.
const ScopeStream = "stream"

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token has expired")
	ErrMissingToken      = errors.New("missing token")
	ErrInsufficientScope = errors.New("token lacks required scope")
)

//nolint:gosec // setting key name, not a credential
const jwtSecretSettingKey = "jwt_secret"

// Claims are the JWT claims carried by a bearer token.
type Claims struct {
	UserID   int64    `json:"uid"`
	Username string   `json:"username"`
	Scopes   []string `json:"scopes"`
	jwt.RegisteredClaims
}

// User is the authenticated identity of a session.
type User struct {
	ID       int64
	Username string
	Scopes   []string
}

// Service validates and issues bearer tokens.
type Service struct {
	db        *sql.DB
	jwtSecret []byte
}

// NewService creates the auth service. With an empty configured secret, one
// is loaded from or generated into the settings table.
func NewService(db *sql.DB, jwtSecret string) (*Service, error) {
	secret := []byte(jwtSecret)
	if len(secret) == 0 {
		var err error
		secret, err = loadOrGenerateSecret(db)
		if err != nil {
			return nil, err
		}
	}
	return &Service{db: db, jwtSecret: secret}, nil
}

func loadOrGenerateSecret(db *sql.DB) ([]byte, error) {
	ctx := context.Background()

	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, jwtSecretSettingKey).Scan(&value)

	switch {
	case err == nil && value != "":
		secret, decErr := hex.DecodeString(value)
		if decErr != nil {
			return nil, fmt.Errorf("failed to decode stored JWT secret: %w", decErr)
		}
		return secret, nil

	case errors.Is(err, sql.ErrNoRows) || (err == nil && value == ""):
		return generateAndPersistSecret(db)

	default:
		return nil, fmt.Errorf("failed to load JWT secret: %w", err)
	}
}

func generateAndPersistSecret(db *sql.DB) ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		jwtSecretSettingKey, hex.EncodeToString(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to persist JWT secret: %w", err)
	}
	return secret, nil
}

// GenerateToken issues a signed bearer token for a user.
func (s *Service) GenerateToken(userID int64, username string, scopes []string) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken parses a bearer token and verifies that it carries the
// required scope. An empty token fails with ErrMissingToken.
func (s *Service) ValidateToken(tokenString, requiredScope string) (*User, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if requiredScope != "" && !slices.Contains(claims.Scopes, requiredScope) {
		return nil, ErrInsufficientScope
	}

	return &User{
		ID:       claims.UserID,
		Username: claims.Username,
		Scopes:   claims.Scopes,
	}, nil
}

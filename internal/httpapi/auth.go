package httpapi

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/supremeagent/promptrunner/pkg/api"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	minPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidToken       = errors.New("invalid token")
)

// AuthOptions configures the authenticator.
type AuthOptions struct {
	// Secret signs tokens. A random secret is generated when empty.
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Users maps emails to bcrypt password hashes.
	Users map[string]string
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type tokenClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Authenticator keeps users in memory and issues HS256 token pairs.
type Authenticator struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	cost       int

	mu    sync.RWMutex
	users map[string][]byte
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(opts AuthOptions) (*Authenticator, error) {
	secret := []byte(opts.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating token secret: %w", err)
		}
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	a := &Authenticator{
		secret:     secret,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		cost:       opts.BcryptCost,
		users:      make(map[string][]byte),
	}
	for email, hash := range opts.Users {
		a.users[normalizeEmail(email)] = []byte(hash)
	}
	return a, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a user and returns its first token pair.
func (a *Authenticator) Signup(email, password string) (api.TokenPair, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return api.TokenPair{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return api.TokenPair{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return api.TokenPair{}, fmt.Errorf("hashing password: %w", err)
	}

	a.mu.Lock()
	if _, exists := a.users[email]; exists {
		a.mu.Unlock()
		return api.TokenPair{}, ErrUserExists
	}
	a.users[email] = hash
	a.mu.Unlock()

	return a.issue(email)
}

// Login checks credentials and returns a token pair.
func (a *Authenticator) Login(email, password string) (api.TokenPair, error) {
	email = normalizeEmail(email)
	a.mu.RLock()
	hash, ok := a.users[email]
	a.mu.RUnlock()
	if !ok {
		return api.TokenPair{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return api.TokenPair{}, ErrInvalidCredentials
	}
	return a.issue(email)
}

// Verify validates an access token and returns its subject.
func (a *Authenticator) Verify(token string) (string, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.TokenType != tokenAccess || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (a *Authenticator) issue(email string) (api.TokenPair, error) {
	access, err := a.sign(email, tokenAccess, a.accessTTL)
	if err != nil {
		return api.TokenPair{}, err
	}
	refresh, err := a.sign(email, tokenRefresh, a.refreshTTL)
	if err != nil {
		return api.TokenPair{}, err
	}
	return api.TokenPair{Access: access, Refresh: refresh}, nil
}

func (a *Authenticator) sign(subject, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", tokenType, err)
	}
	return signed, nil
}

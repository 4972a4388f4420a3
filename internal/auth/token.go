package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/freightdesk/shipledger/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Authenticator issues and verifies bearer tokens against the static
// user directory from the configuration.
type Authenticator struct {
	secret   []byte
	tokenTTL time.Duration
	byEmail  map[string]config.UserConfig
	byID     map[string]config.UserConfig
}

// NewAuthenticator creates an Authenticator from the auth configuration.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	a := &Authenticator{
		secret:   []byte(cfg.Secret),
		tokenTTL: cfg.TokenTTL,
		byEmail:  make(map[string]config.UserConfig, len(cfg.Users)),
		byID:     make(map[string]config.UserConfig, len(cfg.Users)),
	}

	for _, user := range cfg.Users {
		a.byEmail[strings.ToLower(user.Email)] = user
		a.byID[user.ID] = user
	}

	return a
}

// Authenticate checks the credentials and returns a signed token plus
// the identity it encodes.
func (a *Authenticator) Authenticate(email, password string) (string, Identity, error) {
	user, ok := a.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", Identity{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", Identity{}, ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(a.tokenTTL).Unix(),
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", Identity{}, err
	}

	return signed, identityOf(user), nil
}

// Resolve verifies a bearer token, with or without the "Bearer " prefix,
// and returns the identity it belongs to.
func (a *Authenticator) Resolve(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if len(tokenString) >= 7 && strings.EqualFold(tokenString[:7], "bearer ") {
		tokenString = strings.TrimSpace(tokenString[7:])
	}
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	user, ok := a.byID[subject]
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	return identityOf(user), nil
}

func identityOf(user config.UserConfig) Identity {
	return Identity{ID: user.ID, Email: user.Email, Name: user.Name}
}

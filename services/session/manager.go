// Package sessionsvc is the identity backend of the web app: signed session cookies over the
// credential accounts, one Client per browser session.
package sessionsvc

import (
	"context"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/user"
)

const limiterTTL = 10 * time.Minute

var errInvalidToken = errors.New("invalid session token")

// Accounts is the part of the user service the sessions need.
type Accounts interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	SetLastLogin(ctx context.Context, usr user.User) (user.User, error)
}

// Claims are carried by the session cookie.
type Claims struct {
	jwt.StandardClaims
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
}

type Manager struct {
	accounts       Accounts
	validate       *validator.Validate
	logger         core.Logger
	issuer         string
	secret         []byte
	ttl            time.Duration
	persistTimeout time.Duration
	attemptsLimit  rate.Limit
	attemptsBurst  int

	clients  *expirable.LRU[string, *Client]       // by session ID
	revoked  *expirable.LRU[string, struct{}]      // signed out session IDs
	limiters *expirable.LRU[string, *rate.Limiter] // sign in attempts by email
}

func NewManager(accounts Accounts, validate *validator.Validate, logger core.Logger, conf *core.Config) *Manager {
	size := conf.Auth.SessionCacheSize
	if size <= 0 {
		size = 1024
	}
	attempts := conf.Auth.LoginAttemptsPerMinute
	if attempts <= 0 {
		attempts = 10
	}
	return &Manager{
		accounts:       accounts,
		validate:       validate,
		logger:         logger,
		issuer:         conf.AppName,
		secret:         []byte(conf.SecretKey),
		ttl:            conf.Server.SessionTTL,
		persistTimeout: conf.Auth.PersistenceTimeout,
		attemptsLimit:  rate.Every(time.Minute / time.Duration(attempts)),
		attemptsBurst:  attempts,
		clients:        expirable.NewLRU[string, *Client](size, nil, conf.Server.SessionTTL),
		revoked:        expirable.NewLRU[string, struct{}](size, nil, conf.Server.SessionTTL),
		limiters:       expirable.NewLRU[string, *rate.Limiter](size, nil, limiterTTL),
	}
}

// TTL is the lifetime of a session cookie.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Client returns the client of the browser session carried by token.
// An empty, invalid, expired or revoked token gets a new anonymous client.
func (m *Manager) Client(token string) *Client {
	if token != "" {
		claims, err := m.parseToken(token)
		if err == nil {
			if c, ok := m.clients.Get(claims.SessionID); ok {
				return c
			}
			c := newClient(m, claims.SessionID, &claims)
			m.clients.Add(claims.SessionID, c)
			return c
		}
	}
	return newClient(m, uuid.NewString(), nil)
}

func (m *Manager) issueToken(sid string, usr user.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    m.issuer,
			Subject:   usr.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(m.ttl).Unix(),
		},
		SessionID: sid,
		Email:     usr.Email,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing session token")
	}
	return ss, nil
}

func (m *Manager) parseToken(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, errors.Wrap(err, "parsing session token")
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return Claims{}, errInvalidToken
	}
	if m.isRevoked(claims.SessionID) {
		return Claims{}, errInvalidToken
	}
	return claims, nil
}

func (m *Manager) revoke(sid string) {
	m.revoked.Add(sid, struct{}{})
	m.clients.Remove(sid)
}

func (m *Manager) isRevoked(sid string) bool {
	return m.revoked.Contains(sid)
}

// allowAttempt reports whether one more sign in attempt for email is within the rate limit.
func (m *Manager) allowAttempt(email string) bool {
	key := strings.ToLower(email)
	l, ok := m.limiters.Get(key)
	if !ok {
		l = rate.NewLimiter(m.attemptsLimit, m.attemptsBurst)
		m.limiters.Add(key, l)
	}
	return l.Allow()
}

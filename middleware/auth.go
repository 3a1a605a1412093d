package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/RigelNana/media-service/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// PrincipalKey is the gin context key holding the authenticated Principal.
const PrincipalKey = "principal"

var (
	// ErrAnonymous means the request carried no credentials.
	ErrAnonymous          = errors.New("anonymous request")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Principal identifies the caller of a mutating request.
type Principal struct {
	ID     string `json:"id"`
	Role   string `json:"role"`
	Method string `json:"method"`
}

type Authenticator interface {
	Identify(r *http.Request) (Principal, error)
}

// NewAuthenticator 根据 AUTH_MODE 选择认证实现
func NewAuthenticator(cfg *config.Config) (Authenticator, error) {
	switch cfg.Auth.Mode {
	case config.AuthJWT:
		return NewJWTAuthenticator(cfg.Auth.JWTSecret)
	case config.AuthAPIKey:
		return NewAPIKeyAuthenticator(cfg.Auth.APIKeyHash)
	case config.AuthNone:
		return NewNoopAuthenticator(cfg.Env)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

// Claims carried by admin tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator accepts HS256 bearer tokens.
type JWTAuthenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTAuthenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

func (a *JWTAuthenticator) Identify(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Principal{}, ErrAnonymous
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Principal{}, ErrInvalidCredentials
	}

	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return Principal{}, fmt.Errorf("%w: token has no user_id", ErrInvalidCredentials)
	}
	return Principal{ID: id, Role: claims.Role, Method: config.AuthJWT}, nil
}

// APIKeyAuthenticator checks X-API-Key against a bcrypt hash.
type APIKeyAuthenticator struct {
	hash []byte
}

func NewAPIKeyAuthenticator(hash string) (*APIKeyAuthenticator, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("ADMIN_API_KEY_HASH is not a bcrypt hash: %w", err)
	}
	return &APIKeyAuthenticator{hash: []byte(hash)}, nil
}

func (a *APIKeyAuthenticator) Identify(r *http.Request) (Principal, error) {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		return Principal{}, ErrAnonymous
	}
	if bcrypt.CompareHashAndPassword(a.hash, []byte(key)) != nil {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{ID: "api-key", Role: "admin", Method: config.AuthAPIKey}, nil
}

// NoopAuthenticator admits every request as a fixed admin. It refuses to
// exist outside development and test.
type NoopAuthenticator struct {
	principal Principal
}

func NewNoopAuthenticator(env string) (*NoopAuthenticator, error) {
	if env != config.EnvDevelopment && env != config.EnvTest {
		return nil, fmt.Errorf("no-op authenticator is not allowed in %q", env)
	}
	return &NoopAuthenticator{principal: Principal{ID: "dev-admin", Role: "admin", Method: config.AuthNone}}, nil
}

func (a *NoopAuthenticator) Identify(*http.Request) (Principal, error) {
	return a.principal, nil
}

// RequireAuth 中间件：未认证请求返回 401
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := a.Identify(c.Request)
		if err != nil {
			msg := "Invalid credentials"
			if errors.Is(err, ErrAnonymous) {
				msg = "Authentication required"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": msg,
			})
			return
		}
		c.Set(PrincipalKey, p)
		c.Next()
	}
}

// CurrentPrincipal returns the principal stored by RequireAuth.
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

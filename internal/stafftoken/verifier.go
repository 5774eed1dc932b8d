package stafftoken

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer   = "catalog-identity"
	defaultAudience = "catalog-admin"
	defaultLeeway   = 30 * time.Second
)

// ErrForbiddenRole is returned for a valid token whose role may not use the panel.
var ErrForbiddenRole = errors.New("role not allowed")

// Config configures staff access-token verification.
type Config struct {
	JWKSURL      string
	Issuer       string
	Audience     string
	AllowedRoles []string
	Leeway       time.Duration
	HTTPClient   *http.Client
}

// Staff is the authenticated caller.
type Staff struct {
	ID    string
	Email string
	Role  string
}

type staffClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Verifier validates RS256 staff tokens against the identity provider's JWKS.
type Verifier struct {
	issuer   string
	audience string
	leeway   time.Duration
	roles    map[string]struct{}
	keys     *keySet
}

// NewVerifier creates a verifier and loads the initial key set.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	roles := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			roles[role] = struct{}{}
		}
	}

	v := &Verifier{
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
		roles:    roles,
		keys:     &keySet{url: jwksURL, client: client},
	}
	if err := v.keys.refresh(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// Verify validates the token and returns the caller. With no allowed roles
// configured every role is accepted.
func (v *Verifier) Verify(ctx context.Context, token string) (Staff, error) {
	claims, err := v.parse(token)
	if err != nil && (errors.Is(err, errUnknownKey) || v.keys.expired()) {
		if refreshErr := v.keys.refresh(ctx); refreshErr != nil {
			return Staff{}, refreshErr
		}
		claims, err = v.parse(token)
	}
	if err != nil {
		return Staff{}, err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Staff{}, errors.New("token subject missing")
	}
	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if len(v.roles) > 0 {
		if _, ok := v.roles[role]; !ok {
			return Staff{}, ErrForbiddenRole
		}
	}
	return Staff{ID: subject, Email: claims.Email, Role: role}, nil
}

func (v *Verifier) parse(token string) (staffClaims, error) {
	claims := staffClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := v.keys.lookup(strings.TrimSpace(kid))
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return claims, err
	}
	if !parsed.Valid {
		return claims, errors.New("invalid token")
	}
	return claims, nil
}

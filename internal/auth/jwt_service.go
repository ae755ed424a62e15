package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is eight days, matching the session length users
// expect from the dashboard.
const DefaultAccessTokenTTL = 8 * 24 * time.Hour

var (
	// ErrTokenExpired marks a well-formed token whose lifetime has passed.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrTokenInvalid covers every other rejection: bad signature, wrong
	// issuer, missing claims or garbage input.
	ErrTokenInvalid = errors.New("jwt: token invalid")
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims are the application claims carried by an access token.
type Claims struct {
	UserID      string `json:"uid"`
	Email       string `json:"email,omitempty"`
	IsSuperuser bool   `json:"su,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenInput describes the user a token is issued for.
type AccessTokenInput struct {
	UserID      string
	Email       string
	IsSuperuser bool
	Audience    []string
}

// IssuedToken is a signed access token and the facts a login response reports about it.
type IssuedToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn is the remaining lifetime at now, in whole seconds.
func (t IssuedToken) ExpiresIn(now time.Time) int {
	if remaining := t.ExpiresAt.Sub(now); remaining > 0 {
		return int(remaining / time.Second)
	}
	return 0
}

// JWTService signs and verifies HS256 access tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	svc := &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		now:    cfg.Clock,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultAccessTokenTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(svc.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if svc.issuer != "" {
		opts = append(opts, jwt.WithIssuer(svc.issuer))
	}
	svc.parser = jwt.NewParser(opts...)
	return svc, nil
}

// TTL reports how long issued tokens stay valid.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the given user.
func (s *JWTService) Issue(input AccessTokenInput) (IssuedToken, error) {
	if input.UserID == "" {
		return IssuedToken{}, errors.New("jwt: user id is required")
	}

	issuedAt := s.now().Truncate(time.Second)
	issued := IssuedToken{ID: uuid.NewString(), IssuedAt: issuedAt, ExpiresAt: issuedAt.Add(s.ttl)}
	claims := &Claims{
		UserID:      input.UserID,
		Email:       input.Email,
		IsSuperuser: input.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        issued.ID,
			Subject:   input.UserID,
			Issuer:    s.issuer,
			Audience:  input.Audience,
			ExpiresAt: jwt.NewNumericDate(issued.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("jwt: sign token: %w", err)
	}
	issued.Token = signed
	return issued, nil
}

// GenerateAccessToken issues a token and returns only its signed form.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	issued, err := s.Issue(input)
	return issued.Token, err
}

// ValidateAccessToken verifies a token and returns its claims. Errors wrap
// ErrTokenExpired or ErrTokenInvalid together with the jwt library cause.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	var claims Claims
	_, err := s.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	case claims.UserID == "" || claims.UserID != claims.Subject:
		return nil, fmt.Errorf("%w: subject does not match user id", ErrTokenInvalid)
	}
	return &claims, nil
}

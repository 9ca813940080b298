package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is an exported constant or variable used by the token codec.
	ErrMalformed = errors.New("malformed token")
	// ErrSignature is an exported constant or variable used by the token codec.
	ErrSignature = errors.New("token signature invalid")
	// ErrExpired is an exported constant or variable used by the token codec.
	ErrExpired = errors.New("token expired")
	// ErrNotYetValid is an exported constant or variable used by the token codec.
	ErrNotYetValid = errors.New("token not yet valid")
	// ErrIssuerMismatch is an exported constant or variable used by the token codec.
	ErrIssuerMismatch = errors.New("token issuer mismatch")
	// ErrAudienceMismatch is an exported constant or variable used by the token codec.
	ErrAudienceMismatch = errors.New("token audience mismatch")
	// ErrTypeMismatch is an exported constant or variable used by the token codec.
	ErrTypeMismatch = errors.New("token type mismatch")
	// ErrMissingFamilyID is an exported constant or variable used by the token codec.
	ErrMissingFamilyID = errors.New("refresh token missing family id")
	// ErrUnknownKeyID is an exported constant or variable used by the token codec.
	ErrUnknownKeyID = errors.New("unknown signing key id")
)

// KeyResolver supplies the RSA material for signing and verification.
// VerificationKey receives the kid header of the presented token; an empty
// kid selects the current key so tokens minted before rotation metadata
// existed still verify.
type KeyResolver interface {
	SigningKey() (kid string, key *rsa.PrivateKey, err error)
	VerificationKey(kid string) (*rsa.PublicKey, error)
}

// Config defines a public type used by goTokens APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// AccessPayload carries the identity claims embedded in an access token.
type AccessPayload struct {
	UserID      string
	Email       string
	Role        string
	CompanyID   string
	Permissions []string
}

// Codec defines a public type used by goTokens APIs.
//
// Codec instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Codec struct {
	resolver KeyResolver
	config   Config
}

// NewCodec describes the newcodec operation and its observable behavior.
//
// NewCodec may return an error when input validation, dependency calls, or security checks fail.
// NewCodec does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewCodec(resolver KeyResolver, cfg Config) (*Codec, error) {
	if resolver == nil {
		return nil, errors.New("key resolver required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Codec{resolver: resolver, config: cfg}, nil
}

// EncodeAccess describes the encodeaccess operation and its observable behavior.
//
// EncodeAccess may return an error when input validation, dependency calls, or security checks fail.
// EncodeAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Codec) EncodeAccess(payload AccessPayload, jti string, ttl time.Duration) (string, error) {
	if payload.UserID == "" {
		return "", errors.New("user id required")
	}

	claims := AccessClaims{
		Email:       payload.Email,
		Role:        payload.Role,
		CompanyID:   payload.CompanyID,
		Permissions: payload.Permissions,
		BaseClaims:  c.baseClaims(TypeAccess, payload.UserID, jti, ttl),
	}

	return c.sign(claims)
}

// EncodeRefresh describes the encoderefresh operation and its observable behavior.
//
// EncodeRefresh may return an error when input validation, dependency calls, or security checks fail.
// EncodeRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Codec) EncodeRefresh(userID, jti, familyID, deviceID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id required")
	}
	if familyID == "" {
		return "", ErrMissingFamilyID
	}

	claims := RefreshClaims{
		FamilyID:   familyID,
		DeviceID:   deviceID,
		BaseClaims: c.baseClaims(TypeRefresh, userID, jti, ttl),
	}

	return c.sign(claims)
}

// DecodeAccess describes the decodeaccess operation and its observable behavior.
//
// DecodeAccess may return an error when input validation, dependency calls, or security checks fail.
// DecodeAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Codec) DecodeAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.decode(tokenStr, claims, false); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrTypeMismatch
	}
	return claims, nil
}

// DecodeAccessExpired verifies signature, issuer, audience, and type but
// skips expiry so revocation-by-string and token info work on dead tokens.
func (c *Codec) DecodeAccessExpired(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.decode(tokenStr, claims, true); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrTypeMismatch
	}
	return claims, nil
}

// DecodeRefresh describes the decoderefresh operation and its observable behavior.
//
// DecodeRefresh may return an error when input validation, dependency calls, or security checks fail.
// DecodeRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Codec) DecodeRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.decode(tokenStr, claims, false); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrTypeMismatch
	}
	if claims.FamilyID == "" {
		return nil, ErrMissingFamilyID
	}
	return claims, nil
}

// DecodeRefreshExpired is the expiry-tolerant variant of DecodeRefresh.
func (c *Codec) DecodeRefreshExpired(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.decode(tokenStr, claims, true); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrTypeMismatch
	}
	if claims.FamilyID == "" {
		return nil, ErrMissingFamilyID
	}
	return claims, nil
}

// UnverifiedType peeks at the token_type claim without verifying the
// signature. Callers must never trust anything else from an unverified token.
func UnverifiedType(tokenStr string) (Type, error) {
	claims := &BaseClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims.TokenType, nil
}

func (c *Codec) baseClaims(typ Type, userID, jti string, ttl time.Duration) BaseClaims {
	now := time.Now()

	return BaseClaims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{c.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	kid, key, err := c.resolver.SigningKey()
	if err != nil {
		return "", err
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}

	return tok.SignedString(key)
}

func (c *Codec) decode(tokenStr string, claims jwt.Claims, allowExpired bool) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	}
	if allowExpired {
		options = append(options, jwt.WithoutClaimsValidation())
	} else {
		options = append(options,
			jwt.WithIssuer(c.config.Issuer),
			jwt.WithAudience(c.config.Audience),
			jwt.WithIssuedAt(),
		)
		if c.config.Leeway > 0 {
			options = append(options, jwt.WithLeeway(c.config.Leeway))
		}
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := c.resolver.VerificationKey(kid)
		if err != nil {
			return nil, ErrUnknownKeyID
		}
		return key, nil
	})
	if err != nil {
		return classifyParseError(err)
	}
	if !tok.Valid {
		return ErrMalformed
	}

	if allowExpired {
		return c.validateStatic(claims)
	}
	return nil
}

// validateStatic re-checks issuer and audience when claim validation was
// disabled for the expiry-tolerant decode path.
func (c *Codec) validateStatic(claims jwt.Claims) error {
	issuer, err := claims.GetIssuer()
	if err != nil || issuer != c.config.Issuer {
		return ErrIssuerMismatch
	}

	audience, err := claims.GetAudience()
	if err != nil {
		return ErrAudienceMismatch
	}
	for _, aud := range audience {
		if aud == c.config.Audience {
			return nil
		}
	}
	return ErrAudienceMismatch
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuerMismatch
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	case errors.Is(err, ErrUnknownKeyID):
		return ErrUnknownKeyID
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

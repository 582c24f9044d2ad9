package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// ErrorKind classifies token validation failures. Kinds are internal
// diagnostics: callers surface a generic unauthorized response and keep the
// kind for server-side logs only.
type ErrorKind string

// Validation failure kinds
const (
	ErrorKindInvalidSignature ErrorKind = "invalid_signature"
	ErrorKindExpired          ErrorKind = "expired"
	ErrorKindNotYetValid      ErrorKind = "not_yet_valid"
	ErrorKindIssuerMismatch   ErrorKind = "issuer_mismatch"
	ErrorKindAudienceMismatch ErrorKind = "audience_mismatch"
	ErrorKindMissingClaim     ErrorKind = "missing_required_claim"
	ErrorKindMalformed        ErrorKind = "malformed"
	ErrorKindUnsupportedType  ErrorKind = "unsupported_token_type"
)

// ValidationError is a typed token validation failure
type ValidationError struct {
	Kind   ErrorKind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("token validation failed (%s): %s", e.Kind, e.Reason)
}

// KindOf extracts the failure kind from a validation error, or
// ErrorKindMalformed if the error is not a ValidationError.
func KindOf(err error) ErrorKind {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Kind
	}
	return ErrorKindMalformed
}

// Claims is the wire form of the token payload
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	Email    string   `json:"email,omitempty"`
}

// ClaimSet is the validated, normalized output of token validation
type ClaimSet struct {
	Subject   string
	TenantID  string
	Roles     []string
	Email     string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the claim set carries the given canonical role
func (c *ClaimSet) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var errUnsupportedSigningMethod = errors.New("unsupported signing method")

// TokenValidator verifies bearer credentials and extracts their claims.
// Validation is fail-closed: a missing mandatory claim is a hard failure,
// never defaulted.
type TokenValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(secret, issuer, audience string) *TokenValidator {
	return &TokenValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

// Validate parses and verifies a bearer credential and returns its claim
// set with roles in canonical form, or a typed ValidationError.
func (v *TokenValidator) Validate(tokenString string) (*ClaimSet, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc)
	if err != nil {
		return nil, mapParseError(err)
	}
	if !token.Valid {
		return nil, &ValidationError{Kind: ErrorKindInvalidSignature, Reason: "token is not valid"}
	}

	if claims.Issuer != v.issuer {
		return nil, &ValidationError{Kind: ErrorKindIssuerMismatch, Reason: "unexpected issuer"}
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, &ValidationError{Kind: ErrorKindAudienceMismatch, Reason: "unexpected audience"}
	}

	if claims.Subject == "" {
		return nil, &ValidationError{Kind: ErrorKindMissingClaim, Reason: "missing subject claim"}
	}
	if claims.TenantID == "" {
		return nil, &ValidationError{Kind: ErrorKindMissingClaim, Reason: "missing tenant claim"}
	}

	roles, err := NormalizeRoles(claims.Roles)
	if err != nil {
		return nil, &ValidationError{Kind: ErrorKindMalformed, Reason: err.Error()}
	}

	claimSet := &ClaimSet{
		Subject:  claims.Subject,
		TenantID: claims.TenantID,
		Roles:    roles,
		Email:    claims.Email,
		Issuer:   claims.Issuer,
	}
	if claims.IssuedAt != nil {
		claimSet.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		claimSet.ExpiresAt = claims.ExpiresAt.Time
	}

	return claimSet, nil
}

// keyFunc checks for the expected signing method before handing out the key
func (v *TokenValidator) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("%w: %v", errUnsupportedSigningMethod, token.Header["alg"])
	}
	return v.secret, nil
}

func mapParseError(err error) error {
	if errors.Is(err, errUnsupportedSigningMethod) {
		return &ValidationError{Kind: ErrorKindUnsupportedType, Reason: err.Error()}
	}

	var vErr *jwt.ValidationError
	if errors.As(err, &vErr) {
		switch {
		case vErr.Errors&jwt.ValidationErrorMalformed != 0:
			return &ValidationError{Kind: ErrorKindMalformed, Reason: "token is malformed"}
		case vErr.Errors&jwt.ValidationErrorExpired != 0:
			return &ValidationError{Kind: ErrorKindExpired, Reason: "token is expired"}
		case vErr.Errors&jwt.ValidationErrorNotValidYet != 0:
			return &ValidationError{Kind: ErrorKindNotYetValid, Reason: "token is not valid yet"}
		case vErr.Errors&jwt.ValidationErrorSignatureInvalid != 0:
			return &ValidationError{Kind: ErrorKindInvalidSignature, Reason: "signature is invalid"}
		}
	}

	return &ValidationError{Kind: ErrorKindMalformed, Reason: err.Error()}
}

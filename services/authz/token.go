package authz

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/services"
)

// Claims is the context-bound token payload. The permission list is a
// snapshot taken at issuance time; permission changes only take effect on
// the next issue or context switch.
type Claims struct {
	jwt.RegisteredClaims
	Email        string              `json:"email"`
	ContextID    string              `json:"context_id"`
	ContextType  models.ContextType  `json:"context_type"`
	EnterpriseID string              `json:"enterprise_id"`
	AgencySeatID string              `json:"agency_seat_id,omitempty"`
	Role         string              `json:"role"`
	Permissions  []models.Permission `json:"permissions"`
}

// UserID returns the subject as a UUID
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenIssuer signs and validates context-bound JWTs
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenIssuer creates a new token issuer
func NewTokenIssuer(secret string, ttl time.Duration, issuer string) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
	}
}

// Issue signs a token binding the user to the given context
func (i *TokenIssuer) Issue(user *models.User, userContext *models.UserContext) (string, *Claims, error) {
	now := time.Now()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		Email:        user.Email,
		ContextID:    userContext.ID.String(),
		ContextType:  userContext.Type(),
		EnterpriseID: userContext.EnterpriseID.String(),
		Role:         userContext.Role,
		Permissions:  userContext.Permissions,
	}
	if userContext.AgencySeatID != nil {
		claims.AgencySeatID = userContext.AgencySeatID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, services.WrapInternal("failed to sign token", err)
	}

	return signed, claims, nil
}

// Validate parses and verifies a token, returning its claims
func (i *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, services.ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, services.ErrInvalidToken
	}

	return claims, nil
}

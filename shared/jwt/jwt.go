package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wavoo-crm/crmchat/shared/domain"
)

// Claims is what the client needs to know about its own session token. The
// signature is not checked here: the client does not hold the server key and
// the server verifies every request anyway.
type Claims struct {
	UserID    domain.ID
	TenantID  domain.ID
	Role      string
	ExpiresAt time.Time // zero when the token carries no exp
}

func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

var userIDKeys = []string{"id", "uid", "userId", "_id"}

// Inspect decodes the payload of a session token.
func Inspect(token string) (*Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed session token: %w", err)
	}

	out := &Claims{}
	for _, key := range userIDKeys {
		if id := claimID(claims[key]); id != "" {
			out.UserID = id
			break
		}
	}
	out.TenantID = claimID(claims["tenantId"])
	if role, ok := claims["role"].(string); ok {
		out.Role = role
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("malformed exp claim: %w", err)
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func claimID(v any) domain.ID {
	switch t := v.(type) {
	case string:
		return domain.ID(t)
	case float64:
		return domain.ID(fmt.Sprintf("%.0f", t))
	default:
		return ""
	}
}

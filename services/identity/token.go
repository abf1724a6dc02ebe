package identity

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

// sessionClaims are the claims of interest carried by a store-issued
// access token.
type sessionClaims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
}

// parseSessionToken extracts the identity id, email and expiry from an
// access token. The token is NOT verified here: the store is the only
// party holding the signing key and the only verifier; the client just
// reads the public claims.
func parseSessionToken(token string) (id, email string, expiresAt time.Time, err error) {
	claims := new(sessionClaims)
	parser := new(jwt.Parser)
	if _, _, err = parser.ParseUnverified(token, claims); err != nil {
		return "", "", time.Time{}, errors.Wrap(err, "parsing access token")
	}
	if claims.ExpiresAt > 0 {
		expiresAt = time.Unix(claims.ExpiresAt, 0)
	}
	return claims.Subject, claims.Email, expiresAt, nil
}

// newSession builds a Session from a raw token response, preferring the
// identity fields reported by the store and falling back to the token
// claims when they are absent.
func newSession(accessToken, tokenType, userID, email string, expiresIn int64) *Session {
	s := &Session{
		AccessToken: accessToken,
		TokenType:   tokenType,
		UserID:      userID,
		Email:       email,
	}
	if expiresIn > 0 {
		s.ExpiresAt = time.Now().UTC().Add(time.Duration(expiresIn) * time.Second)
	}
	if s.UserID == "" || s.Email == "" || expiresIn == 0 {
		if id, em, exp, err := parseSessionToken(accessToken); err == nil {
			if s.UserID == "" {
				s.UserID = id
			}
			if s.Email == "" {
				s.Email = em
			}
			if s.ExpiresAt.IsZero() {
				s.ExpiresAt = exp
			}
		}
	}
	return s
}

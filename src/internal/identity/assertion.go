package identity

import (
	"errors"
	"fmt"

	"challengehub-realtime-svc/src/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const identityTokenType = "identity"

// Claims is the identity assertion produced by the upstream login provider.
type Claims struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	Provider  string `json:"provider,omitempty"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// AssertionVerifier checks HS256 identity assertions signed with the shared key.
type AssertionVerifier struct {
	key []byte
}

func NewAssertionVerifier(key string) *AssertionVerifier {
	return &AssertionVerifier{key: []byte(key)}
}

// Verify validates signature, expiry and token type.
func (v *AssertionVerifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, models.ErrInvalidAssertion
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.key, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		logrus.WithError(err).Debug("Identity assertion rejected")
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidAssertion, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, models.ErrInvalidAssertion
	}

	if claims.TokenType != identityTokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", models.ErrInvalidAssertion, claims.TokenType)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", models.ErrInvalidAssertion)
	}

	return claims, nil
}

// Sign issues an assertion. The upstream provider uses the same routine;
// it is also what tests and local tooling use to log in.
func (v *AssertionVerifier) Sign(claims Claims) (string, error) {
	claims.TokenType = identityTokenType
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.key)
}

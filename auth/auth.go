package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserContext is the authenticated identity a session runs under.
type UserContext struct {
	UserID string
	Role   string
}

// Claims represents the claims in our JWT tokens
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"` // "student" or "parent"
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens presented in the authenticate frame.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates a JWT token and returns the user identity it carries
func (v *Verifier) Verify(tokenString string) (UserContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return UserContext{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return UserContext{}, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" {
		return UserContext{}, fmt.Errorf("token has no user_id claim")
	}

	return UserContext{UserID: claims.UserID, Role: claims.Role}, nil
}

// MintToken signs a token for the given user. Token issuance belongs to the
// platform's account service; this exists for local testing and the probe client.
func (v *Verifier) MintToken(userID, role string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

package hubsim

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/sirupsen/logrus"
)

// validity of issued tokens. Hubs hand out long-lived tokens, a paired
// integration is not expected to pair again.
const tokenValidity = time.Hour * 24 * 365

// tokenClaims carried by issued bearer tokens
type tokenClaims struct {
	DeviceName string `json:"deviceName"`
	jwt.StandardClaims
}

// TokenIssuer mints and verifies the bearer tokens handed out by push-button
// pairing.
//
// This keeps the JWT signing secret in memory. As a result all tokens are
// invalidated after a restart and clients must pair again. For a simulator
// that is intentional.
type TokenIssuer struct {
	signingKey []byte
	// when set, pairing hands out this token instead of minting one.
	// Intended for tests that script exact token values.
	fixedToken string
}

// NewTokenIssuer creates an issuer with a fresh random signing secret
//  fixedToken overrides minting when not empty
func NewTokenIssuer(fixedToken string) *TokenIssuer {
	signingKey := make([]byte, 64)
	rand.Read(signingKey)
	return &TokenIssuer{
		signingKey: signingKey,
		fixedToken: fixedToken,
	}
}

// IssueToken creates a bearer token for the device that completed pairing
func (issuer *TokenIssuer) IssueToken(deviceName string) string {
	if issuer.fixedToken != "" {
		return issuer.fixedToken
	}
	claims := &tokenClaims{
		DeviceName: deviceName,
		StandardClaims: jwt.StandardClaims{
			Issuer:    "hubsim",
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(tokenValidity).Unix(),
		},
	}
	jwtToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err := jwtToken.SignedString(issuer.signingKey)
	if err != nil {
		logrus.Errorf("TokenIssuer.IssueToken: %s", err)
		return ""
	}
	return token
}

// VerifyToken checks that the token was issued here and is still valid
func (issuer *TokenIssuer) VerifyToken(tokenString string) bool {
	if tokenString == "" {
		return false
	}
	if issuer.fixedToken != "" {
		return tokenString == issuer.fixedToken
	}
	claims := &tokenClaims{}
	jwtToken, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, isHMAC := token.Method.(*jwt.SigningMethodHMAC); !isHMAC {
				return nil, fmt.Errorf("Unexpected signing method %v", token.Header["alg"])
			}
			return issuer.signingKey, nil
		})
	if err != nil || !jwtToken.Valid {
		logrus.Infof("TokenIssuer.VerifyToken: token rejected: %s", err)
		return false
	}
	return true
}

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const deviceTokenTTL = 24 * time.Hour

type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenIssuer signs device tokens. The same token form is handed to the local
// UI and presented to the remote authority as the Authorization bearer.
type TokenIssuer struct {
	secret   []byte
	deviceID string
}

func NewTokenIssuer(secret, deviceID string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), deviceID: deviceID}
}

func (t *TokenIssuer) Issue() (TokenResponse, error) {
	claims := Claims{
		DeviceID: t.deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(deviceTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(deviceTokenTTL.Seconds()),
	}, nil
}

func (t *TokenIssuer) Validate(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", errors.New("token invalid")
	}
	return claims.DeviceID, nil
}

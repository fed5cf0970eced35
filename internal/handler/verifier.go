package handler

import (
	"errors"
	"fmt"

	"istory-server/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JWTVerifier validates wallet-session tokens issued by the auth
// collaborator. HMAC only; any other signing method is rejected.
type JWTVerifier struct {
	secret []byte
	logger *zap.Logger
}

func NewJWTVerifier(secret string, logger *zap.Logger) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTVerifier{secret: []byte(secret), logger: logger.Named("JWTVerifier")}, nil
}

// VerifyToken parses and validates the token, returning the wallet
// claims.
func (v *JWTVerifier) VerifyToken(tokenString string) (*model.Claims, error) {
	claims := &model.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, model.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, model.ErrTokenMalformed
		default:
			v.logger.Debug("Token validation failed", zap.Error(err))
			return nil, model.ErrTokenInvalid
		}
	}
	if !token.Valid || claims.Wallet == "" {
		return nil, model.ErrTokenInvalid
	}
	return claims, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptySecret 签名密钥为空
var ErrEmptySecret = errors.New("secret key cannot be empty")

// AuthToken 屏幕客户端的JWT签发与校验
type AuthToken struct {
	secretKey []byte
	ttl       time.Duration
}

func NewAuthToken(secretKey string, ttl time.Duration) (*AuthToken, error) {
	if secretKey == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthToken{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}, nil
}

func (at *AuthToken) GenerateToken(deviceID string) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"device_id": deviceID,
		"exp":       now.Add(at.ttl).Unix(),
		"iat":       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(at.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// VerifyToken 校验token并返回其中的设备ID
func (at *AuthToken) VerifyToken(tokenString string) (bool, string, error) {
	if at == nil {
		return false, "", errors.New("AuthToken instance is nil")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return at.secretKey, nil
	})
	if err != nil {
		return false, "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return false, "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false, "", errors.New("invalid claims")
	}

	deviceID, ok := claims["device_id"].(string)
	if !ok {
		return false, "", errors.New("invalid device_id in claims")
	}

	return true, deviceID, nil
}

package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	ErrInvalidToken    = errors.New("无效的认证token或token已过期")
	ErrDeviceMismatch  = errors.New("设备ID与token不匹配")
	ErrDeviceForbidden = errors.New("设备未被允许访问")
)

// VerifyDevice 校验token属于请求中的设备；allowed 为空时不限制设备
func (at *AuthToken) VerifyDevice(token, requestDeviceID string, allowed []string) (string, error) {
	isValid, deviceID, err := at.VerifyToken(token)
	if err != nil || !isValid {
		return "", ErrInvalidToken
	}
	if requestDeviceID != deviceID {
		return deviceID, ErrDeviceMismatch
	}
	if len(allowed) > 0 && !slices.Contains(allowed, deviceID) {
		return deviceID, ErrDeviceForbidden
	}
	return deviceID, nil
}

// Middleware 要求 Authorization: Bearer <token> 与 Device-Id 请求头，onReject 可为空
func (at *AuthToken) Middleware(allowed []string, onReject func(c *gin.Context, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		err := ErrInvalidToken
		if strings.HasPrefix(authHeader, "Bearer ") {
			var deviceID string
			deviceID, err = at.VerifyDevice(authHeader[7:], c.GetHeader("Device-Id"), allowed)
			if err == nil {
				c.Set("device_id", deviceID)
				c.Next()
				return
			}
		}
		if onReject != nil {
			onReject(c, err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": err.Error(),
		})
	}
}

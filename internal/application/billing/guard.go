package billing

import (
	"crypto/subtle"

	apperrors "credits-gateway/pkg/errors"
)

// SecretGuard 常量时间比较共享密钥
type SecretGuard struct {
	secret     []byte
	allowEmpty bool
}

// NewAdminGuard 未配置管理员密钥时拒绝所有请求
func NewAdminGuard(adminKey string) *SecretGuard {
	return &SecretGuard{secret: []byte(adminKey)}
}

// NewCronGuard 未配置 cron 密钥时放行
func NewCronGuard(cronSecret string) *SecretGuard {
	return &SecretGuard{secret: []byte(cronSecret), allowEmpty: true}
}

func (g *SecretGuard) Check(provided string) error {
	if len(g.secret) == 0 {
		if g.allowEmpty {
			return nil
		}
		return apperrors.InvalidAdminKey()
	}
	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), g.secret) != 1 {
		return apperrors.InvalidAdminKey()
	}
	return nil
}

package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureVerifier 校验支付回调 HMAC-SHA256 签名
type SignatureVerifier struct {
	secret []byte
	prefix string
}

// NewSignatureVerifier secret 为空表示运维显式关闭校验
func NewSignatureVerifier(secret, prefix string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret), prefix: prefix}
}

// Enabled 是否配置了密钥
func (v *SignatureVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify 对原始请求体校验签名
func (v *SignatureVerifier) Verify(payload []byte, signature string) bool {
	if !v.Enabled() {
		return true
	}
	return VerifySignature(payload, signature, string(v.secret), v.prefix)
}

// Sign 计算小写十六进制签名
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 常量时间比较；长度不同或非法十六进制时返回 false
func VerifySignature(payload []byte, signature, secret, prefix string) bool {
	if secret == "" {
		return true
	}
	received := strings.TrimSpace(signature)
	if prefix != "" {
		received = strings.TrimPrefix(received, prefix)
	}
	if received == "" {
		return false
	}
	got, err := hex.DecodeString(received)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}

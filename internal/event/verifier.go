package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownSource    = errors.New("unknown event source")
)

// Verifier 校验推送签名
// Catalog: HMAC-SHA256(body) 的 base64；Marketplace: 十六进制
type Verifier struct {
	catalogSecret []byte
	marketSecret  []byte
}

// NewVerifier 创建签名校验器
func NewVerifier(catalogSecret, marketSecret string) *Verifier {
	return &Verifier{
		catalogSecret: []byte(catalogSecret),
		marketSecret:  []byte(marketSecret),
	}
}

// Verify 校验原始请求体签名，secret 未配置时一律拒绝
func (v *Verifier) Verify(source string, body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrInvalidSignature
	}

	var (
		secret []byte
		want   []byte
		err    error
	)
	switch source {
	case model.EventSourceCatalog:
		secret = v.catalogSecret
		want, err = base64.StdEncoding.DecodeString(signature)
	case model.EventSourceMarketplace:
		secret = v.marketSecret
		want, err = hex.DecodeString(strings.TrimPrefix(strings.ToLower(signature), "sha256="))
	default:
		return ErrUnknownSource
	}
	if err != nil || len(secret) == 0 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign 按来源生成签名，测试与联调使用
func Sign(source, secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sum := mac.Sum(nil)
	if source == model.EventSourceMarketplace {
		return hex.EncodeToString(sum)
	}
	return base64.StdEncoding.EncodeToString(sum)
}

// ChallengeResponse Marketplace 端点所有权校验：hex(sha256(challenge + token + endpoint))
func ChallengeResponse(challengeCode, verificationToken, endpoint string) string {
	h := sha256.New()
	h.Write([]byte(challengeCode))
	h.Write([]byte(verificationToken))
	h.Write([]byte(endpoint))
	return hex.EncodeToString(h.Sum(nil))
}

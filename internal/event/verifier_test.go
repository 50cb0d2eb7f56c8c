package event

import (
	"testing"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestVerifier(t *testing.T) {
	v := NewVerifier("catalog-secret", "market-secret")
	body := []byte(`{"id":101}`)

	tests := []struct {
		name      string
		source    string
		signature string
		wantErr   error
	}{
		{"Catalog 正确签名", model.EventSourceCatalog, Sign(model.EventSourceCatalog, "catalog-secret", body), nil},
		{"Marketplace 正确签名", model.EventSourceMarketplace, Sign(model.EventSourceMarketplace, "market-secret", body), nil},
		{"Marketplace 带前缀", model.EventSourceMarketplace, "sha256=" + Sign(model.EventSourceMarketplace, "market-secret", body), nil},
		{"密钥错误", model.EventSourceCatalog, Sign(model.EventSourceCatalog, "other", body), ErrInvalidSignature},
		{"来源串用", model.EventSourceMarketplace, Sign(model.EventSourceMarketplace, "catalog-secret", body), ErrInvalidSignature},
		{"空签名", model.EventSourceCatalog, "", ErrInvalidSignature},
		{"编码错误", model.EventSourceCatalog, "%%%", ErrInvalidSignature},
		{"未知来源", "amazon", "abc", ErrUnknownSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.source, body, tt.signature)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	// 篡改请求体
	sig := Sign(model.EventSourceCatalog, "catalog-secret", body)
	assert.ErrorIs(t, v.Verify(model.EventSourceCatalog, []byte(`{"id":102}`), sig), ErrInvalidSignature)
}

func TestVerifier_EmptySecretRejects(t *testing.T) {
	v := NewVerifier("", "")
	body := []byte(`{}`)
	assert.ErrorIs(t, v.Verify(model.EventSourceCatalog, body, Sign(model.EventSourceCatalog, "", body)), ErrInvalidSignature)
}

func TestChallengeResponse(t *testing.T) {
	got := ChallengeResponse("abc", "token", "https://sync.example.com/webhooks/marketplace")
	assert.Len(t, got, 64)
	assert.Equal(t, got, ChallengeResponse("abc", "token", "https://sync.example.com/webhooks/marketplace"))
	assert.NotEqual(t, got, ChallengeResponse("abd", "token", "https://sync.example.com/webhooks/marketplace"))
}

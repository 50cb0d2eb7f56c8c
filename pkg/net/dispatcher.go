package net

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNoToken 未配置可用 Token
var ErrNoToken = errors.New("no access token available")

// TokenSource 提供当前有效的访问令牌
// 令牌的获取与刷新由外部授权模块负责，这里只读取
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken 固定令牌（配置文件/环境变量注入）
type StaticToken string

// Token 实现 TokenSource
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// ClientOptions 平台 HTTP 客户端参数
type ClientOptions struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	ProxyURL     string // 可选，出口代理

	Tokens     TokenSource
	AuthHeader string // 默认 Authorization
	AuthScheme string // 默认 Bearer；为 "-" 时直接写入令牌
	Headers    map[string]string
}

// NewClient 创建平台 HTTP 客户端
// 429 自动退避重试；网络错误与 5xx 只重试幂等请求，见 Idempotent
func NewClient(opts ClientOptions) *resty.Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWait == 0 {
		opts.RetryWait = 500 * time.Millisecond
	}
	if opts.RetryMaxWait == 0 {
		opts.RetryMaxWait = 10 * time.Second
	}
	if opts.AuthHeader == "" {
		opts.AuthHeader = "Authorization"
	}
	if opts.AuthScheme == "" {
		opts.AuthScheme = "Bearer"
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(shouldRetry)

	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}

	if opts.ProxyURL != "" {
		client.SetProxy(opts.ProxyURL)
	}

	if opts.Tokens != nil {
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			token, err := opts.Tokens.Token(req.Context())
			if err != nil {
				return err
			}
			if opts.AuthScheme == "-" {
				req.SetHeader(opts.AuthHeader, token)
			} else {
				req.SetHeader(opts.AuthHeader, opts.AuthScheme+" "+token)
			}
			return nil
		})
	}

	return client
}

// idempotentKey 标记可以安全重放的 POST 请求
type idempotentKey struct{}

// Idempotent 标记请求可重放：只读 GraphQL 查询、按绝对值覆盖的批量更新等
// 未标记的 POST（创建订单、创建发货）只在 429 时重试，结果未知时交给上层去重
func Idempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotentKey{}, true)
}

// replayable GET/PUT/DELETE 天然幂等，POST 需显式标记
func replayable(req *resty.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	marked, _ := req.Context().Value(idempotentKey{}).(bool)
	return marked
}

// shouldRetry 重试判定
func shouldRetry(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil {
		// 请求未发出（如取不到 Token），重试无意义
		return false
	}
	if err != nil {
		// 调用方取消的请求不再重试
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return replayable(resp.Request)
	}
	code := resp.StatusCode()
	if code == http.StatusTooManyRequests {
		// 限流拒绝的请求未被处理
		return true
	}
	return code >= http.StatusInternalServerError && replayable(resp.Request)
}

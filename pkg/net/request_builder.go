package net

import (
	"github.com/go-resty/resty/v2"

	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

// CheckResponse 将 resty 调用结果统一转换为平台错误
// op: 调用标识，如 "shopify.CreateOrder"
func CheckResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return platform.Transient(op, err)
	}
	if resp.IsError() {
		return platform.FromStatus(op, resp.StatusCode(), resp.String())
	}
	return nil
}

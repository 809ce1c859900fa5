package adapter

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"promocode/internal/pkg/httpclient"
	"promocode/internal/service/redemption/domain"
)

var errMissingDigest = errors.New("ledger returned no settlement digest")

// CurrencyHTTPAdapter 通过结算账本服务的 HTTP 接口给用户入账 diamond，实现 domain.CurrencyLedger。
// 账本服务按 idempotencyKey 去重，重复请求返回第一次的结果
type CurrencyHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewCurrencyHTTPAdapter(client *httpclient.Client, baseURL, token string) *CurrencyHTTPAdapter {
	if token != "" {
		client.Header.Set("Authorization", "Bearer "+token)
	}
	return &CurrencyHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type creditRequest struct {
	Address        string `json:"address"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
	Note           string `json:"note,omitempty"`
}

type creditResponse struct {
	Balance    int64  `json:"balance"`
	Digest     string `json:"digest"`
	Duplicated bool   `json:"duplicated"`
}

func (a *CurrencyHTTPAdapter) Credit(ctx context.Context, address string, amount int64, idempotencyKey, note string) (*domain.CreditResult, error) {
	var resp creditResponse
	err := a.client.PostJSON(ctx, a.baseURL+"/v1/credits", creditRequest{
		Address:        address,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Note:           note,
	}, &resp)
	if err != nil {
		return nil, errors.Wrapf(err, "credit %d diamond to %s", amount, address)
	}
	// 没有结算 digest 说明入账没有真正落到结算网络上
	if strings.TrimSpace(resp.Digest) == "" {
		return nil, errors.Wrapf(errMissingDigest, "credit %d diamond to %s", amount, address)
	}
	return &domain.CreditResult{
		NewBalance:    resp.Balance,
		SettlementRef: resp.Digest,
		Duplicated:    resp.Duplicated,
	}, nil
}

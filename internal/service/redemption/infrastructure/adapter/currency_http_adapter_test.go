package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"promocode/internal/pkg/httpclient"
)

func TestCurrencyHTTPAdapter_Credit(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]creditResponse{}
		bal  int64
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/credits" || r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req creditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := seen[req.IdempotencyKey]; ok {
			prev.Duplicated = true
			_ = json.NewEncoder(w).Encode(prev)
			return
		}
		bal += req.Amount
		resp := creditResponse{Balance: bal, Digest: "0xdigest-" + req.IdempotencyKey}
		seen[req.IdempotencyKey] = resp
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	adapter := NewCurrencyHTTPAdapter(httpclient.NewClient(nil), srv.URL+"/", "secret")

	res, err := adapter.Credit(context.Background(), "0xabc", 30, "rec-1", "promo")
	require.NoError(t, err)
	require.EqualValues(t, 30, res.NewBalance)
	require.Equal(t, "0xdigest-rec-1", res.SettlementRef)
	require.False(t, res.Duplicated)

	res, err = adapter.Credit(context.Background(), "0xabc", 30, "rec-1", "promo")
	require.NoError(t, err)
	require.True(t, res.Duplicated)
	require.EqualValues(t, 30, res.NewBalance)
}

func TestCurrencyHTTPAdapter_LedgerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewCurrencyHTTPAdapter(httpclient.NewClient(nil), srv.URL, "")
	_, err := adapter.Credit(context.Background(), "0xabc", 1, "rec-1", "")
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestCurrencyHTTPAdapter_MissingDigestIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(creditResponse{Balance: 7})
	}))
	defer srv.Close()

	adapter := NewCurrencyHTTPAdapter(httpclient.NewClient(nil), srv.URL, "")
	res, err := adapter.Credit(context.Background(), "0xabc", 7, "rec-1", "")
	require.ErrorIs(t, err, errMissingDigest)
	require.Nil(t, res)
}

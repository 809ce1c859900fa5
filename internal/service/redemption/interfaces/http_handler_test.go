package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"promocode/internal/service/redemption/application"
	"promocode/internal/service/redemption/domain"
)

type fakeUseCase struct {
	last   *application.RedeemRequest
	result *application.RedeemResult
	err    error
}

func (f *fakeUseCase) Redeem(_ context.Context, req *application.RedeemRequest) (*application.RedeemResult, error) {
	f.last = req
	return f.result, f.err
}

func serve(t *testing.T, uc *fakeUseCase, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	mux := http.NewServeMux()
	NewRedemptionHandler(uc).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHandleRedeem_Success(t *testing.T) {
	uc := &fakeUseCase{result: &application.RedeemResult{
		RecordID:   "rec-1",
		Reward:     &domain.RewardSummary{Type: domain.RewardDiamond, Amount: 50, Digest: "0xd"},
		Duplicated: true,
	}}
	req := httptest.NewRequest(http.MethodPost, "/redeem", strings.NewReader(`{"code":"ABC123","address":"0x1"}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "wallet/1.0")

	rec, body := serve(t, uc, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "rec-1", body["recordId"])
	require.Equal(t, true, body["duplicated"])
	reward := body["reward"].(map[string]any)
	require.Equal(t, "diamond", reward["type"])
	require.EqualValues(t, 50, reward["amount"])

	require.Equal(t, "ABC123", uc.last.Code)
	require.Equal(t, "203.0.113.7", uc.last.IP)
	require.Equal(t, "wallet/1.0", uc.last.UserAgent)
}

func TestHandleRedeem_DomainError(t *testing.T) {
	uc := &fakeUseCase{err: domain.ErrCodeUsedUp}
	req := httptest.NewRequest(http.MethodPost, "/redeem", strings.NewReader(`{"code":"ABC123","address":"0x2"}`))
	req.Header.Set("X-Real-IP", "198.51.100.2")

	rec, body := serve(t, uc, req)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, false, body["ok"])
	require.Equal(t, "code_used_up", body["error"])
	require.EqualValues(t, 409, body["status"])
	require.Equal(t, "198.51.100.2", uc.last.IP)
}

func TestHandleRedeem_InternalErrorIsHidden(t *testing.T) {
	uc := &fakeUseCase{err: errors.New("dial tcp 10.0.0.5:3306: connection refused")}
	req := httptest.NewRequest(http.MethodPost, "/redeem", strings.NewReader(`{"code":"X","address":"0x2"}`))

	rec, body := serve(t, uc, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "redeem_failed", body["error"])
	require.NotContains(t, rec.Body.String(), "3306")
}

func TestHandleRedeem_BadRequests(t *testing.T) {
	uc := &fakeUseCase{}

	rec, body := serve(t, uc, httptest.NewRequest(http.MethodPost, "/redeem", strings.NewReader(`{not json`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "code_required", body["error"])
	require.Nil(t, uc.last)

	rec, _ = serve(t, uc, httptest.NewRequest(http.MethodGet, "/redeem", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/redeem", nil)
	req.RemoteAddr = "192.0.2.10:54321"
	require.Equal(t, "192.0.2.10", clientIP(req))
}

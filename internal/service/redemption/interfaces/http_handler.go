package interfaces

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"promocode/internal/pkg/logger"
	"promocode/internal/service/redemption/application"
	"promocode/internal/service/redemption/domain"
)

const maxBodyBytes = 4 << 10

// RedemptionUseCase 是 handler 依赖的用例，由 application.RedemptionService 实现
type RedemptionUseCase interface {
	Redeem(ctx context.Context, req *application.RedeemRequest) (*application.RedeemResult, error)
}

// RedemptionHandler 封装了 redemption 服务的 HTTP 处理器
type RedemptionHandler struct {
	service RedemptionUseCase
}

// NewRedemptionHandler 创建一个新的 HTTP 处理器实例
func NewRedemptionHandler(service RedemptionUseCase) *RedemptionHandler {
	return &RedemptionHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *RedemptionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/redeem", h.handleRedeem)
}

type redeemBody struct {
	Code    string `json:"code"`
	Address string `json:"address"`
}

type successResponse struct {
	OK         bool                  `json:"ok"`
	RecordID   string                `json:"recordId"`
	Reward     *domain.RewardSummary `json:"reward"`
	Duplicated bool                  `json:"duplicated,omitempty"`
}

type errorResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (h *RedemptionHandler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed", Status: http.StatusMethodNotAllowed})
		return
	}
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var body redeemBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, domain.ErrCodeRequired)
		return
	}

	result, err := h.service.Redeem(ctx, &application.RedeemRequest{
		Code:      body.Code,
		Address:   body.Address,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		de := domain.AsError(err, domain.ErrRedeemFailed)
		if de.Status >= http.StatusInternalServerError {
			logger.Ctx(ctx).Error().Err(err).Str("code", body.Code).Msg("redeem returned server error")
		}
		writeError(w, de)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{
		OK:         true,
		RecordID:   result.RecordID,
		Reward:     result.Reward,
		Duplicated: result.Duplicated,
	})
}

func writeError(w http.ResponseWriter, de *domain.Error) {
	writeJSON(w, de.Status, errorResponse{OK: false, Error: de.Code, Status: de.Status})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// clientIP 优先取代理头，其次是连接的对端地址
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

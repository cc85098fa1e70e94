package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	orderdomain "github.com/raihanmd/storefront/internal/order/domain"
	"github.com/raihanmd/storefront/internal/payment/application"
	"github.com/raihanmd/storefront/internal/payment/domain"
	"github.com/raihanmd/storefront/pkg/metrics"
)

const maxNotificationBytes = 1 << 20

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("payment-http"),
	}
}

// Routes is mounted under /api/payments. The static /notifications segment
// wins over the {orderID} param in chi's trie.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/notifications", h.notification)
	r.Post("/{orderID}", h.initiate)
	r.Get("/{orderID}", h.status)
	return r
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "InitiatePayment")
	defer span.End()

	p, err := h.service.Initiate(ctx, chi.URLParam(r, "orderID"))
	metrics.RecordOperation("initiate_payment", err == nil)
	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, domain.ErrGateway):
		h.log.Error("gateway call failed", "err", err)
		writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	case err != nil:
		h.log.Error("payment initiation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":        p.Token,
		"redirect_url": p.RedirectURL,
		"expires_at":   p.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetByOrderID(r.Context(), chi.URLParam(r, "orderID"))
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		writeJSON(w, http.StatusOK, map[string]any{"payment": nil})
		return
	case err != nil:
		h.log.Error("payment lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"payment": map[string]string{
		"order_id":      p.OrderID,
		"gateway_tx_id": p.GatewayTxID,
		"status":        string(p.Status),
		"gross_amount":  p.GrossAmount.StringFixed(2),
		"payment_type":  p.PaymentType,
		"expires_at":    p.ExpiresAt.Format(time.RFC3339),
	}})
}

// notification always acknowledges. The gateway retries on anything but a
// 2xx, so even unreadable bodies and internal failures answer ok here and
// get sorted out through logs.
func (h *Handler) notification(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HandleNotification")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		h.log.Warn("notification body unreadable", "err", err)
	} else {
		h.service.HandleNotification(ctx, body)
	}
	metrics.RecordOperation("gateway_notification", true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

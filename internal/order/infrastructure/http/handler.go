package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	catalog "github.com/raihanmd/storefront/internal/catalog/domain"
	"github.com/raihanmd/storefront/internal/order/application"
	"github.com/raihanmd/storefront/internal/order/domain"
	"github.com/raihanmd/storefront/pkg/metrics"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type createOrderReq struct {
	CustomerName     string  `json:"customer_name"`
	CustomerPhone    string  `json:"customer_phone"`
	Address          string  `json:"address"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	DeliverySchedule string  `json:"delivery_schedule"`
	PaymentMethod    string  `json:"payment_method"`
	Items            []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

type updateStatusReq struct {
	Status string `json:"status"`
}

// Routes is the public storefront surface.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.create)
	r.Get("/orders/{number}", h.getByNumber)
	return r
}

// AdminRoutes must be mounted behind the auth middleware: these endpoints
// mutate order state directly.
func (h *Handler) AdminRoutes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders/{id}/approve", h.approve)
	r.Post("/orders/{id}/reject", h.reject)
	r.Patch("/orders/{id}/status", h.updateStatus)
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	in := application.CreateInput{
		CustomerName:     req.CustomerName,
		CustomerPhone:    req.CustomerPhone,
		Address:          req.Address,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		DeliverySchedule: domain.DeliverySchedule(req.DeliverySchedule),
		PaymentMethod:    domain.PaymentMethod(req.PaymentMethod),
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, application.CreateItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	o, err := h.service.Create(ctx, in)
	metrics.RecordOperation("create_order", err == nil)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse(o))
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ApproveOrder")
	defer span.End()

	o, err := h.service.Approve(ctx, chi.URLParam(r, "id"))
	metrics.RecordOperation("approve_order", err == nil)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RejectOrder")
	defer span.End()

	o, err := h.service.Reject(ctx, chi.URLParam(r, "id"))
	metrics.RecordOperation("reject_order", err == nil)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatus")
	defer span.End()

	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	o, err := h.service.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status)
	metrics.RecordOperation("update_order_status", err == nil)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var oos *domain.OutOfStockError
	switch {
	case errors.As(err, &oos):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "out of stock",
			"product_id": oos.ProductID,
			"requested":  oos.Requested,
			"available":  oos.Available,
		})
	case errors.Is(err, catalog.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("order request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type orderItemView struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	PriceAtTime string `json:"price_at_time"`
}

type orderView struct {
	ID               string          `json:"id"`
	Number           string          `json:"number"`
	CustomerName     string          `json:"customer_name"`
	CustomerPhone    string          `json:"customer_phone"`
	Address          string          `json:"address"`
	DeliverySchedule string          `json:"delivery_schedule"`
	PaymentMethod    string          `json:"payment_method"`
	TotalAmount      string          `json:"total_amount"`
	Status           string          `json:"status"`
	Items            []orderItemView `json:"items"`
}

func orderResponse(o domain.Order) orderView {
	v := orderView{
		ID:               o.ID,
		Number:           o.Number,
		CustomerName:     o.CustomerName,
		CustomerPhone:    o.CustomerPhone,
		Address:          o.Address,
		DeliverySchedule: string(o.DeliverySchedule),
		PaymentMethod:    string(o.PaymentMethod),
		TotalAmount:      o.TotalAmount.StringFixed(2),
		Status:           string(o.Status),
	}
	for _, item := range o.Items {
		v.Items = append(v.Items, orderItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			PriceAtTime: item.PriceAtTime.StringFixed(2),
		})
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

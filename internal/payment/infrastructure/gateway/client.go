package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/raihanmd/storefront/internal/payment/domain"
)

var ErrBadSignature = errors.New("invalid notification signature")

// Client talks to the snap-style payment gateway over HTTPS with the server
// key as basic-auth user. All calls are bounded by the http client timeout on
// top of whatever deadline the caller's context carries.
type Client struct {
	log       *slog.Logger
	baseURL   string
	serverKey string
	httpc     *http.Client
}

func NewClient(log *slog.Logger, baseURL, serverKey string) *Client {
	return &Client{
		log:       log,
		baseURL:   baseURL,
		serverKey: serverKey,
		httpc:     &http.Client{Timeout: 10 * time.Second},
	}
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount string `json:"gross_amount"`
}

type itemDetail struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type customerDetails struct {
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
}

type expiryDetails struct {
	Unit     string `json:"unit"`
	Duration int    `json:"duration"`
}

type chargePayload struct {
	TransactionDetails transactionDetails `json:"transaction_details"`
	ItemDetails        []itemDetail       `json:"item_details"`
	CustomerDetails    customerDetails    `json:"customer_details"`
	Expiry             expiryDetails      `json:"expiry"`
}

type chargeReply struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

func (c *Client) CreateTransaction(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResponse, error) {
	payload := chargePayload{
		TransactionDetails: transactionDetails{
			OrderID:     req.GatewayTxID,
			GrossAmount: req.GrossAmount.StringFixed(2),
		},
		CustomerDetails: customerDetails{FirstName: req.CustomerName, Phone: req.CustomerPhone},
		Expiry:          expiryDetails{Unit: "minutes", Duration: req.ExpiryMinutes},
	}
	for _, item := range req.Items {
		payload.ItemDetails = append(payload.ItemDetails, itemDetail{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price.StringFixed(2),
			Quantity: item.Quantity,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ChargeResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return domain.ChargeResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return domain.ChargeResponse{}, err
	}
	defer resp.Body.Close()

	var reply chargeReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return domain.ChargeResponse{}, fmt.Errorf("decode gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.ChargeResponse{}, fmt.Errorf("gateway returned %d: %v", resp.StatusCode, reply.ErrorMessages)
	}
	return domain.ChargeResponse{Token: reply.Token, RedirectURL: reply.RedirectURL}, nil
}

type notificationPayload struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// ParseNotification decodes a webhook body and verifies its signature:
// sha512(order_id + status_code + gross_amount + serverKey). Callers only
// ever see verified fields.
func (c *Client) ParseNotification(body []byte) (domain.Notification, error) {
	var n notificationPayload
	if err := json.Unmarshal(body, &n); err != nil {
		return domain.Notification{}, fmt.Errorf("decode notification: %w", err)
	}

	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + c.serverKey))
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) != 1 {
		return domain.Notification{}, fmt.Errorf("gateway tx %s: %w", n.OrderID, ErrBadSignature)
	}

	return domain.Notification{
		GatewayTxID:   n.OrderID,
		Status:        n.TransactionStatus,
		FraudStatus:   n.FraudStatus,
		TransactionID: n.TransactionID,
		PaymentType:   n.PaymentType,
		StatusCode:    n.StatusCode,
		GrossAmount:   n.GrossAmount,
	}, nil
}

// GetTransactionStatus polls the gateway. The answer is informational only,
// webhooks remain the authoritative channel.
func (c *Client) GetTransactionStatus(ctx context.Context, gatewayTxID string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/"+gatewayTxID+"/status", nil)
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gateway status returned %d: %s", resp.StatusCode, b)
	}
	var reply struct {
		TransactionStatus string `json:"transaction_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", err
	}
	return reply.TransactionStatus, nil
}

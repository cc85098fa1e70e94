//go:build integration

package integration

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogdomain "github.com/raihanmd/storefront/internal/catalog/domain"
	catalogpg "github.com/raihanmd/storefront/internal/catalog/postgres"
	orderapp "github.com/raihanmd/storefront/internal/order/application"
	orderdomain "github.com/raihanmd/storefront/internal/order/domain"
	orderpg "github.com/raihanmd/storefront/internal/order/infrastructure/postgres"
	paymentapp "github.com/raihanmd/storefront/internal/payment/application"
	paymentdomain "github.com/raihanmd/storefront/internal/payment/domain"
	"github.com/raihanmd/storefront/internal/payment/infrastructure/gateway"
	paymentpg "github.com/raihanmd/storefront/internal/payment/infrastructure/postgres"
	storagepg "github.com/raihanmd/storefront/internal/storage/postgres"
	"github.com/raihanmd/storefront/pkg/idempotency"
	"github.com/raihanmd/storefront/pkg/logging"
	"github.com/raihanmd/storefront/pkg/outbox"
)

const serverKey = "SB-test-server-key"

type stack struct {
	env        *Env
	pool       *pgxpool.Pool
	catalog    *catalogpg.Repository
	orders     *orderapp.Service
	payments   *paymentapp.Service
	gatewaySrv *httptest.Server
}

func newStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	log := logging.New()

	env, err := Setup(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(context.Background()) })

	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, storagepg.Migrate(ctx, pool))

	opts, err := redis.ParseURL(env.RedisAddr)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	dedup := idempotency.NewStore(rdb, time.Minute)

	// Stand-in snap endpoint so the real gateway client exercises its full
	// request path.
	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snap/v1/transactions" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":        "snap-token",
			"redirect_url": "https://pay.example/redirect",
		})
	}))
	t.Cleanup(gatewaySrv.Close)

	catalogRepo := catalogpg.NewRepository(log, pool)
	orderRepo := orderpg.NewRepository(log, pool, catalogRepo)
	orderSvc := orderapp.NewService(log, orderRepo, catalogRepo)

	gw := gateway.NewClient(log, gatewaySrv.URL, serverKey)
	paymentRepo := paymentpg.NewRepository(log, pool, orderRepo)
	paymentSvc := paymentapp.NewService(log, paymentRepo, orderRepo, gw, dedup, time.Hour)

	return &stack{
		env:        env,
		pool:       pool,
		catalog:    catalogRepo,
		orders:     orderSvc,
		payments:   paymentSvc,
		gatewaySrv: gatewaySrv,
	}
}

func signedNotification(t *testing.T, gatewayTxID, status, fraudStatus, statusCode, grossAmount string) []byte {
	t.Helper()
	sum := sha512.Sum512([]byte(gatewayTxID + statusCode + grossAmount + serverKey))
	body, err := json.Marshal(map[string]string{
		"order_id":           gatewayTxID,
		"transaction_status": status,
		"fraud_status":       fraudStatus,
		"transaction_id":     "gw-" + gatewayTxID,
		"payment_type":       "qris",
		"status_code":        statusCode,
		"gross_amount":       grossAmount,
		"signature_key":      hex.EncodeToString(sum[:]),
	})
	require.NoError(t, err)
	return body
}

func TestGatewayPaymentFlow(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	require.NoError(t, s.catalog.UpsertProduct(ctx, catalogdomain.Product{
		ID: "p1", Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5,
	}))

	o, err := s.orders.Create(ctx, orderapp.CreateInput{
		CustomerName:     "Ana",
		CustomerPhone:    "555-0100",
		Address:          "Main St 1",
		DeliverySchedule: orderdomain.DeliveryMorning,
		PaymentMethod:    orderdomain.MethodGateway,
		Items:            []orderapp.CreateItemInput{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, o.Status)

	// Creation must not touch stock.
	p, err := s.catalog.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	pay, err := s.payments.Initiate(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "snap-token", pay.Token)

	// Repeated initiation reuses the open transaction.
	again, err := s.payments.Initiate(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, pay.GatewayTxID, again.GatewayTxID)

	settle := signedNotification(t, pay.GatewayTxID, "settlement", "", "200", "20.00")
	s.payments.HandleNotification(ctx, settle)

	stored, err := s.payments.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusSettlement, stored.Status)

	reloaded, err := s.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusApproved, reloaded.Status)

	p, err = s.catalog.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	// Redelivered settlement and a late pending both bounce off the latch.
	s.payments.HandleNotification(ctx, settle)
	s.payments.HandleNotification(ctx, signedNotification(t, pay.GatewayTxID, "pending", "", "201", "20.00"))

	p, err = s.catalog.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	stored, err = s.payments.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusSettlement, stored.Status)
}

func TestExpireNotificationCancelsOrder(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	require.NoError(t, s.catalog.UpsertProduct(ctx, catalogdomain.Product{
		ID: "p1", Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5,
	}))

	o, err := s.orders.Create(ctx, orderapp.CreateInput{
		CustomerName:  "Ana",
		CustomerPhone: "555-0100",
		Address:       "Main St 1",
		PaymentMethod: orderdomain.MethodGateway,
		Items:         []orderapp.CreateItemInput{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)

	pay, err := s.payments.Initiate(ctx, o.ID)
	require.NoError(t, err)

	s.payments.HandleNotification(ctx, signedNotification(t, pay.GatewayTxID, "expire", "", "407", "10.00"))

	reloaded, err := s.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCancelled, reloaded.Status)

	p, err := s.catalog.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestOutboxRelayDeliversEvents(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)
	log := logging.New()

	const topic = "storefront.events.test"
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(s.env.KAddr...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	store := storagepg.NewOutboxStore(log, s.pool)
	relay := outbox.NewRelay(log, store, outbox.NewDispatcher(log, writer, topic), "it-relay")

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go func() { _ = relay.Run(relayCtx) }()

	require.NoError(t, s.catalog.UpsertProduct(ctx, catalogdomain.Product{
		ID: "p1", Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5,
	}))
	o, err := s.orders.Create(ctx, orderapp.CreateInput{
		CustomerName:  "Ana",
		CustomerPhone: "555-0100",
		Address:       "Main St 1",
		PaymentMethod: orderdomain.MethodGateway,
		Items:         []orderapp.CreateItemInput{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: s.env.KAddr,
		Topic:   topic,
		GroupID: "it-consumer",
	})
	defer reader.Close()

	readCtx, cancelRead := context.WithTimeout(ctx, time.Minute)
	defer cancelRead()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)

	assert.Equal(t, o.ID, string(msg.Key))
	var eventType string
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			eventType = string(h.Value)
		}
	}
	assert.Equal(t, "OrderCreated", eventType)

	var payload orderdomain.OrderCreated
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, o.Number, payload.Number)

	// The relay must mark the row sent so restarts never replay it.
	require.Eventually(t, func() bool {
		var unsent int
		err := s.pool.QueryRow(ctx,
			`SELECT count(*) FROM outbox WHERE status <> 'sent'`).Scan(&unsent)
		return err == nil && unsent == 0
	}, 30*time.Second, 500*time.Millisecond)
}

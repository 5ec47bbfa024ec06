package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"stars-storefront-go/internal/botapi"
	"stars-storefront-go/internal/listener"
	"stars-storefront-go/internal/metrics"
	"stars-storefront-go/internal/models"

	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu      sync.Mutex
	updates []botapi.Update
	err     error
}

func (q *fakeQueue) Enqueue(update botapi.Update) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.updates = append(q.updates, update)
	return nil
}

type fakeHealth struct{ err error }

func (h fakeHealth) Ping(context.Context) error { return h.err }

const updateBody = `{"update_id": 77, "pre_checkout_query": {"id": "q-1", "from": {"id": 7, "first_name": "A"},
	"currency": "XTR", "total_amount": 100, "invoice_payload": "product_1_7_abc"}}`

func newTestServer(queue *fakeQueue, health fakeHealth) *Server {
	cfg := models.ServerConfig{ListenAddr: "127.0.0.1:0", WebhookSecret: "s3cret"}
	return NewServer(cfg, queue, health, metrics.NewIsolated().Handler())
}

func do(t *testing.T, s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhook_AcceptsUpdate(t *testing.T) {
	queue := &fakeQueue{}
	s := newTestServer(queue, fakeHealth{})

	rec := do(t, s, http.MethodPost, "/webhook/s3cret", updateBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, queue.updates, 1)
	update := queue.updates[0]
	require.Equal(t, int64(77), update.UpdateId)
	require.NotNil(t, update.PreCheckoutQuery)
	require.Equal(t, int64(7), update.PreCheckoutQuery.From.Id)
	require.Equal(t, "product_1_7_abc", update.PreCheckoutQuery.InvoicePayload)
}

func TestWebhook_SecretHeader(t *testing.T) {
	queue := &fakeQueue{}
	s := newTestServer(queue, fakeHealth{})

	rec := do(t, s, http.MethodPost, "/webhook", updateBody, map[string]string{SecretHeader: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, queue.updates, 1)
}

func TestWebhook_RejectsBadSecret(t *testing.T) {
	queue := &fakeQueue{}
	s := newTestServer(queue, fakeHealth{})

	require.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/webhook/wrong", updateBody, nil).Code)
	require.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/webhook", updateBody, nil).Code)
	require.Equal(t, http.StatusUnauthorized,
		do(t, s, http.MethodPost, "/webhook", updateBody, map[string]string{SecretHeader: "nope"}).Code)
	require.Empty(t, queue.updates)
}

func TestWebhook_MalformedBody(t *testing.T) {
	s := newTestServer(&fakeQueue{}, fakeHealth{})
	rec := do(t, s, http.MethodPost, "/webhook/s3cret", "{not json", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_Backpressure(t *testing.T) {
	s := newTestServer(&fakeQueue{err: listener.ErrQueueFull}, fakeHealth{})
	rec := do(t, s, http.MethodPost, "/webhook/s3cret", updateBody, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s = newTestServer(&fakeQueue{err: errors.New("boom")}, fakeHealth{})
	rec = do(t, s, http.MethodPost, "/webhook/s3cret", updateBody, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeQueue{}, fakeHealth{})
	rec := do(t, s, http.MethodGet, "/webhook/s3cret", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeQueue{}, fakeHealth{})
	rec := do(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	s = newTestServer(&fakeQueue{}, fakeHealth{err: errors.New("database is locked")})
	rec = do(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "database is locked")
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.NewIsolated()
	m.GateDecisions.WithLabelValues("allowed").Inc()
	s := NewServer(models.ServerConfig{ListenAddr: "127.0.0.1:0"}, &fakeQueue{}, fakeHealth{}, m.Handler())

	rec := do(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `storefront_gate_decisions_total{decision="allowed"} 1`)

	// Without a secret any caller is accepted
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/webhook", updateBody, nil).Code)
}

func TestMetricsRoute_Disabled(t *testing.T) {
	s := NewServer(models.ServerConfig{ListenAddr: "127.0.0.1:0"}, &fakeQueue{}, fakeHealth{}, nil)
	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics", "", nil).Code)
}

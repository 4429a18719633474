package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Initialize(t *testing.T) {
	var (
		gotAuth   string
		gotMethod string
		gotPath   string
		gotBody   map[string]any
		calls     int
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"reference":         "ref-abc",
				"authorization_url": "https://pay.example/ref-abc",
				"access_code":       "code-1",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", nil)

	intent, err := c.Initialize(context.Background(), InitializeRequest{
		OrderID: "o-1",
		Amount:  decimal.NewFromFloat(118.00),
		Email:   "jo@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk_test", gotAuth)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/transaction/initialize", gotPath)
	assert.Equal(t, "o-1", gotBody["orderId"])
	assert.Equal(t, "jo@example.com", gotBody["email"])

	assert.Equal(t, "ref-abc", intent.Reference)
	assert.Equal(t, "https://pay.example/ref-abc", intent.AuthorizationURL)
	assert.Equal(t, "code-1", intent.AccessCode)
	assert.Equal(t, 1, calls)
}

func TestClient_Initialize_LocalValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("validation failures must not reach the processor")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", nil)

	_, err := c.Initialize(context.Background(), InitializeRequest{
		OrderID: "o-1", Amount: decimal.Zero, Email: "jo@example.com",
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = c.Initialize(context.Background(), InitializeRequest{
		OrderID: "o-1", Amount: decimal.NewFromInt(10), Email: "",
	})
	assert.ErrorIs(t, err, ErrMissingEmail)
}

func TestClient_Initialize_ServerErrorSingleAttempt(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", nil)

	_, err := c.Initialize(context.Background(), InitializeRequest{
		OrderID: "o-1", Amount: decimal.NewFromInt(10), Email: "jo@example.com",
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "payment-initiating calls are never auto-retried")
}

func TestClient_Verify(t *testing.T) {
	tests := []struct {
		name       string
		wireStatus string
		want       TransactionStatus
	}{
		{"success", "success", StatusSuccess},
		{"failed", "failed", StatusFailed},
		{"pending", "pending", StatusPending},
		{"unknown status maps to failed", "reversed", StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/transaction/verify/ref-abc", r.URL.Path)

				_ = json.NewEncoder(w).Encode(map[string]any{
					"status": true,
					"data": map[string]any{
						"status": tt.wireStatus,
						"amount": "118.00",
						"metadata": map[string]any{
							"orderId": "o-1",
						},
					},
				})
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "sk_test", nil)

			res, err := c.Verify(context.Background(), "ref-abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, "o-1", res.OrderID)
			assert.True(t, decimal.NewFromFloat(118.00).Equal(res.Amount))
		})
	}
}

func TestClient_Verify_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "reference not found",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", nil)

	_, err := c.Verify(context.Background(), "ref-abc")

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ref-abc", verr.Reference)
	assert.Equal(t, "reference not found", verr.Reason)
}

func TestClient_Verify_MissingReference(t *testing.T) {
	c := NewClient("http://unused", "sk_test", nil)

	_, err := c.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingRef)
}

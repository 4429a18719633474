package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openkart/checkout/pkg/retry"
)

// Client is an HTTP Gateway implementation against the processor's JSON API.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	policy    *retry.Policy
	tracer    trace.Tracer
}

var _ Gateway = (*Client)(nil)

// NewClient creates a Client. tp may be nil, in which case no spans are
// recorded.
func NewClient(baseURL, secretKey string, tp trace.TracerProvider) *Client {
	c := &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 15 * time.Second},
		policy:    retry.NewPolicy(),
	}
	if tp != nil {
		c.tracer = tp.Tracer("payment")
	}
	return c
}

type initializeBody struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
	Email   string          `json:"email"`
}

type initializeResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Reference        string `json:"reference"`
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
	} `json:"data"`
	Message string `json:"message"`
}

type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status   string          `json:"status"`
		Amount   decimal.Decimal `json:"amount"`
		Metadata struct {
			OrderID string `json:"orderId"`
		} `json:"metadata"`
	} `json:"data"`
	Message string `json:"message"`
}

// Initialize creates a payment intent for the given order. Input is
// validated locally before any network call, and the request runs as a
// single attempt: payment-initiating writes are never retried automatically.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Intent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, end := c.startSpan(ctx, "payment.Initialize", req.OrderID)
	defer end()

	var out initializeResponse
	err := c.policy.Do(ctx, retry.WriteUnsafe, func(ctx context.Context) error {
		return c.call(ctx, http.MethodPost, "/transaction/initialize", initializeBody{
			OrderID: req.OrderID,
			Amount:  req.Amount,
			Email:   req.Email,
		}, &out)
	})
	if err != nil {
		return nil, errors.Wrap(err, "initialize")
	}
	if !out.Status {
		return nil, errors.Errorf("processor rejected initialization: %s", out.Message)
	}

	return &Intent{
		Reference:        out.Data.Reference,
		AuthorizationURL: out.Data.AuthorizationURL,
		AccessCode:       out.Data.AccessCode,
	}, nil
}

// Verify asks the processor for the authoritative outcome of a reference.
// It is the single source of truth for whether funds were captured. A
// transport failure returns an error without implying any outcome; the call
// is not retried automatically.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if reference == "" {
		return nil, ErrMissingRef
	}

	ctx, end := c.startSpan(ctx, "payment.Verify", reference)
	defer end()

	var out verifyResponse
	err := c.policy.Do(ctx, retry.WriteUnsafe, func(ctx context.Context) error {
		return c.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &out)
	})
	if err != nil {
		return nil, errors.Wrap(err, "verify")
	}
	if !out.Status {
		return nil, &VerificationError{Reference: reference, Reason: out.Message}
	}

	status := TransactionStatus(out.Data.Status)
	switch status {
	case StatusPending, StatusSuccess, StatusFailed:
	default:
		status = StatusFailed
	}

	return &VerifyResult{
		Status:  status,
		OrderID: out.Data.Metadata.OrderID,
		Amount:  out.Data.Amount,
	}, nil
}

// call performs one authenticated JSON round trip.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return retry.Transient(errors.Errorf("processor returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return errors.Errorf("processor returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) startSpan(ctx context.Context, name, ref string) (context.Context, func()) {
	if c.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("payment.reference", ref)),
	)
	return ctx, func() { span.End() }
}

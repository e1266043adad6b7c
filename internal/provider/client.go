package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/kyc-verifier/internal/model"
)

// Wire paths and constants of the provider API.
const (
	pathAuthenticate = "/authenticate"
	pathVerifyPAN    = "/kyc/pan/verify"
	pathVerifyLink   = "/kyc/pan-aadhaar/status"
	pathStatus       = "/kyc/requests/"

	entityPAN  = "in.co.sandbox.kyc.pan_verification.request"
	entityLink = "in.co.sandbox.kyc.pan_aadhaar.status"

	wireDateLayout = "02/01/2006"

	// defaultTokenTTL applies when the access token carries no readable expiry.
	defaultTokenTTL = 23 * time.Hour
	tokenSkew       = time.Minute
)

// Config configures Client.
type Config struct {
	Name      string
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client talks to the provider over HTTP. Retries belong to the caller;
// the transport issues exactly one request per call (plus one re-authentication).
type Client struct {
	name   string
	http   *resty.Client
	key    string
	secret string
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// New constructs a client.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "sandbox"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		name:   cfg.Name,
		http:   hc,
		key:    cfg.APIKey,
		secret: cfg.APISecret,
		log:    log,
		now:    time.Now,
	}
}

// Name returns the provider name used for usage accounting.
func (c *Client) Name() string { return c.name }

type authResponse struct {
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
	Data        struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// accessToken returns a cached token or authenticates.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Add(tokenSkew).Before(c.tokenExp) {
		return c.token, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.key).
		SetHeader("x-api-secret", c.secret).
		Post(pathAuthenticate)
	if err != nil {
		return "", transportError(err)
	}

	var ar authResponse
	_ = json.Unmarshal(resp.Body(), &ar)
	if resp.IsError() {
		return "", statusError(resp.StatusCode(), "authenticate: "+ar.Message)
	}
	tok := ar.AccessToken
	if tok == "" {
		tok = ar.Data.AccessToken
	}
	if tok == "" {
		return "", &Error{StatusCode: resp.StatusCode(), Category: CategoryAuthentication, Message: "authenticate: no access token in response"}
	}

	c.token = tok
	c.tokenExp = c.expiry(tok)
	c.log.Debug("provider token refreshed", zap.Time("expires_at", c.tokenExp))
	return tok, nil
}

// expiry reads the exp claim without verifying; the provider signs, we only cache.
func (c *Client) expiry(tok string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return c.now().Add(defaultTokenTTL)
}

func (c *Client) dropToken(tok string) {
	c.mu.Lock()
	if c.token == tok {
		c.token = ""
	}
	c.mu.Unlock()
}

func verifyBody(req Request) (string, map[string]any, error) {
	switch req.Type {
	case model.TypePAN:
		return pathVerifyPAN, map[string]any{
			"@entity":         entityPAN,
			"pan":             req.TaxID,
			"name_as_per_pan": req.Name,
			"date_of_birth":   req.DateOfBirth.Format(wireDateLayout),
			"consent":         "Y",
			"reason":          "KYC verification",
		}, nil
	case model.TypeAadhaarPAN:
		return pathVerifyLink, map[string]any{
			"@entity":        entityLink,
			"aadhaar_number": req.NationalID,
			"pan":            req.TaxID,
			"date_of_birth":  req.DateOfBirth.Format(wireDateLayout),
			"consent":        "Y",
			"reason":         "KYC verification",
		}, nil
	}
	return "", nil, fmt.Errorf("unsupported verification type %q", req.Type)
}

// Verify submits one subject for verification.
func (c *Client) Verify(ctx context.Context, req Request) (Result, error) {
	path, body, err := verifyBody(req)
	if err != nil {
		return Result{}, &Error{Category: CategoryUnknown, Message: err.Error(), Err: err}
	}
	return c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).Post(path)
	})
}

// Status polls a request the provider accepted without deciding.
func (c *Client) Status(ctx context.Context, requestID string) (Result, error) {
	if requestID == "" {
		return Result{}, &Error{Category: CategoryUnknown, Message: "empty request id"}
	}
	return c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(pathStatus + requestID)
	})
}

// call runs an authenticated request, re-authenticating once on 401.
func (c *Client) call(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) (Result, error) {
	for attempt := 0; ; attempt++ {
		tok, err := c.accessToken(ctx)
		if err != nil {
			return Result{}, err
		}
		resp, err := send(c.http.R().
			SetContext(ctx).
			SetHeader("authorization", tok).
			SetHeader("x-api-key", c.key).
			SetHeader("x-accept-cache", "true"))
		if err != nil {
			return Result{}, transportError(err)
		}
		if resp.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			c.dropToken(tok)
			continue
		}
		return decode(resp.StatusCode(), resp.Body())
	}
}

type verifyResponse struct {
	Status        string          `json:"status"`
	Message       string          `json:"message"`
	RequestID     string          `json:"request_id"`
	TransactionID string          `json:"transaction_id"`
	Data          json.RawMessage `json:"data"`
}

type verifyData struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// decode interprets a provider response. "success" and "failed" may appear at the
// top level or under data; anything else is undetermined.
func decode(status int, body []byte) (Result, error) {
	var vr verifyResponse
	decErr := json.Unmarshal(body, &vr)
	var vd verifyData
	if len(vr.Data) > 0 && vr.Data[0] == '{' {
		_ = json.Unmarshal(vr.Data, &vd)
	}

	if status >= http.StatusBadRequest {
		return Result{}, statusError(status, firstNonEmpty(vr.Message, vd.Message))
	}
	if decErr != nil {
		return Result{}, &Error{StatusCode: status, Category: CategoryUnknown, Message: "decode response: " + decErr.Error(), Err: decErr}
	}

	payload := json.RawMessage(body)
	switch {
	case strings.EqualFold(vr.Status, "success") || strings.EqualFold(vd.Status, "success"):
		return Result{Outcome: OutcomeVerified, Payload: payload}, nil
	case strings.EqualFold(vr.Status, "failed") || strings.EqualFold(vd.Status, "failed"):
		return Result{
			Outcome: OutcomeRejected,
			Reason:  firstNonEmpty(vr.Message, vd.Message, "Verification failed"),
			Payload: payload,
		}, nil
	default:
		return Result{
			Outcome:   OutcomePending,
			RequestID: firstNonEmpty(vd.RequestID, vr.RequestID, vr.TransactionID),
			Payload:   payload,
		}, nil
	}
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

var _ Verifier = (*Client)(nil)

// ErrNotDetermined marks a request the provider never decided within the attempt budget.
var ErrNotDetermined = errors.New("verification still in progress at provider")

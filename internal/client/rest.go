// Package client talks to a running prediction server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"polymer-predictor/internal/api"
	"polymer-predictor/internal/ml"
	"polymer-predictor/internal/storage"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client is a REST client for the prediction API.
type Client struct {
	base string
	rest *resty.Client
}

// New creates a client for the server at base, e.g. http://localhost:8080.
func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// BaseURL returns the server address the client targets.
func (c *Client) BaseURL() string { return c.base }

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}, okCodes ...int) (*resty.Response, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&api.ErrorResponse{})
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.IsSuccess() {
		return resp, nil
	}
	for _, code := range okCodes {
		if resp.StatusCode() == code {
			return resp, nil
		}
	}

	msg := resp.String()
	if e, ok := resp.Error().(*api.ErrorResponse); ok && e.Error != "" {
		msg = e.Error
	}
	return resp, &APIError{StatusCode: resp.StatusCode(), Message: msg}
}

// Predict returns predictions for one molecule.
func (c *Client) Predict(ctx context.Context, smiles string) (*api.PredictionResponse, error) {
	out := &api.PredictionResponse{}
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/predict", api.SMILESRequest{SMILES: smiles}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictBatch returns predictions for many molecules, in input order.
func (c *Client) PredictBatch(ctx context.Context, smiles []string) (*api.BatchResponse, error) {
	out := &api.BatchResponse{}
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/predict/batch", api.BatchRequest{SMILES: smiles}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Features returns the descriptor vector the server computes for smiles.
func (c *Client) Features(ctx context.Context, smiles string) (*api.FeaturesResponse, error) {
	out := &api.FeaturesResponse{}
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/features", api.SMILESRequest{SMILES: smiles}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks smiles and returns its canonical form when valid.
func (c *Client) Validate(ctx context.Context, smiles string) (*api.ValidateResponse, error) {
	out := &api.ValidateResponse{}
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/molecule/validate", api.SMILESRequest{SMILES: smiles}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health reports server health. A degraded server (503) is not an error.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	out := &api.HealthResponse{}
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, out, http.StatusServiceUnavailable)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusServiceUnavailable {
		// resty only decodes Result for 2xx
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return nil, fmt.Errorf("decode health response: %w", err)
		}
	}
	return out, nil
}

// ModelInfo describes the model artifact the server loaded.
func (c *Client) ModelInfo(ctx context.Context) (*ml.StoreInfo, error) {
	out := &ml.StoreInfo{}
	if _, err := c.do(ctx, http.MethodGet, "/model/info", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Predictions returns up to limit recent predictions, newest first.
func (c *Client) Predictions(ctx context.Context, limit int) ([]storage.PredictionRecord, error) {
	var out []storage.PredictionRecord
	path := "/api/v1/predictions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

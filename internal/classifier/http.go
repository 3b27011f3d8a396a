package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

// HTTP talks to the remote anomaly service.
type HTTP struct {
	baseURL string
	timeout time.Duration
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTP{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

type initRouteRequest struct {
	UID   string      `json:"uid"`
	Route []geo.Point `json:"route"`
}

func (h *HTTP) InitRoute(ctx context.Context, uid string, route []geo.Point) error {
	_, err := h.post(ctx, "/init-route", initRouteRequest{UID: uid, Route: route})
	return err
}

func (h *HTTP) Classify(ctx context.Context, s Sample) (Result, error) {
	body, err := h.post(ctx, "/live-point", s)
	if err != nil {
		return Result{}, err
	}
	return decodeResult(body)
}

func (h *HTTP) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	timeout := h.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(h.baseURL + path)
	agent.Timeout(timeout)
	agent.JSON(payload)
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnavailable, path, code)
	}
	return body, nil
}

// decodeResult accepts both {"status":"UNSAFE"} and the nested
// {"status":{"status":"UNSAFE"}} shape.
func decodeResult(body []byte) (Result, error) {
	var raw struct {
		Status       json.RawMessage `json:"status"`
		Reason       string          `json:"reason"`
		RiskLevel    string          `json:"risk_level"`
		Distance     float64         `json:"distance"`
		FarIndicator bool            `json:"far_indicator"`
		Error        string          `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if raw.Error != "" {
		return Result{}, fmt.Errorf("%w: %s", ErrUnavailable, raw.Error)
	}

	res := Result{
		Reason:       raw.Reason,
		RiskLevel:    raw.RiskLevel,
		Distance:     raw.Distance,
		FarIndicator: raw.FarIndicator,
	}
	if len(raw.Status) == 0 {
		return res, nil
	}
	var status string
	if err := json.Unmarshal(raw.Status, &status); err == nil {
		res.Status = status
		return res, nil
	}
	var nested struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw.Status, &nested); err != nil {
		return Result{}, fmt.Errorf("decode classifier status: %w", err)
	}
	res.Status = nested.Status
	return res, nil
}

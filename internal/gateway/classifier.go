// Package gateway wraps the external chest X-ray classifier service. The
// model itself is opaque: one request in, one labeled result out.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"pneumodetect/internal/domain"
)

// Classification is the gateway's answer for one image.
type Classification struct {
	Label       domain.ModelResult
	Confidence  float64 // normalized to [0,1]
	Explanation string
	Saliency    []byte // optional saliency image, may be nil
}

// Classifier is the Model Gateway boundary.
type Classifier interface {
	Classify(ctx context.Context, filename string, image []byte) (*Classification, error)
}

// classifyResponse is the wire format of the classifier service.
type classifyResponse struct {
	Result      string  `json:"result"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	// Saliency map as base64 JPEG, optional.
	Saliency string `json:"saliency,omitempty"`
}

// HTTPClassifier talks to the classifier service over HTTP. Every call
// has an explicit timeout; the caller never waits forever on the model.
type HTTPClassifier struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewHTTPClassifier(baseURL string, timeout time.Duration, retries int, logger *zap.Logger) *HTTPClassifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Accept", "application/json")

	return &HTTPClassifier{httpClient: client, logger: logger}
}

var _ Classifier = (*HTTPClassifier)(nil)

func (c *HTTPClassifier) Classify(ctx context.Context, filename string, image []byte) (*Classification, error) {
	var result classifyResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(image)).
		SetResult(&result).
		Post("/classify")
	if err != nil {
		c.logger.Error("Classifier call failed", zap.Error(err))
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("Classifier returned error status",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("classifier status %d", resp.StatusCode())
	}

	label := domain.ModelResult(result.Result)
	if !label.Valid() {
		return nil, fmt.Errorf("classifier returned unknown label %q", result.Result)
	}

	// Some deployments report percentages; store [0,1] only.
	confidence := result.Confidence
	if confidence > 1 {
		confidence = confidence / 100
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("classifier returned confidence out of range: %v", result.Confidence)
	}

	out := &Classification{
		Label:       label,
		Confidence:  confidence,
		Explanation: result.Explanation,
	}
	if result.Saliency != "" {
		saliency, err := base64.StdEncoding.DecodeString(result.Saliency)
		if err != nil {
			// A broken saliency map does not invalidate the label.
			c.logger.Warn("Discarding undecodable saliency payload", zap.Error(err))
		} else {
			out.Saliency = saliency
		}
	}
	return out, nil
}

package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pneumodetect/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func classifierServer(t *testing.T, handler http.HandlerFunc) *HTTPClassifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClassifier(srv.URL, 2*time.Second, 0, zap.NewNop())
}

func TestClassifyParsesResponse(t *testing.T) {
	saliency := []byte("saliency-jpeg")
	c := classifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/classify", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		require.Equal(t, "xray.jpg", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result":      "PNEUMONIA",
			"confidence":  0.91,
			"explanation": "Right lower lobe opacity.",
			"saliency":    base64.StdEncoding.EncodeToString(saliency),
		})
	})

	cls, err := c.Classify(context.Background(), "xray.jpg", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultPneumonia, cls.Label)
	assert.InDelta(t, 0.91, cls.Confidence, 1e-9)
	assert.Equal(t, saliency, cls.Saliency)
}

func TestClassifyNormalizesPercentConfidence(t *testing.T) {
	c := classifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result":     "NORMAL",
			"confidence": 87.5,
		})
	})

	cls, err := c.Classify(context.Background(), "xray.jpg", []byte("img"))
	require.NoError(t, err)
	assert.InDelta(t, 0.875, cls.Confidence, 1e-9)
}

func TestClassifyRejectsUnknownLabel(t *testing.T) {
	c := classifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result":     "MAYBE",
			"confidence": 0.5,
		})
	})

	_, err := c.Classify(context.Background(), "xray.jpg", []byte("img"))
	assert.Error(t, err)
}

func TestClassifyToleratesBrokenSaliency(t *testing.T) {
	c := classifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result":     "NORMAL",
			"confidence": 0.7,
			"saliency":   "%%%not-base64%%%",
		})
	})

	cls, err := c.Classify(context.Background(), "xray.jpg", []byte("img"))
	require.NoError(t, err)
	assert.Nil(t, cls.Saliency)
}

func TestClassifyErrorStatus(t *testing.T) {
	c := classifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})

	_, err := c.Classify(context.Background(), "xray.jpg", []byte("img"))
	assert.Error(t, err)
}

func TestClassifyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := NewHTTPClassifier(srv.URL, 50*time.Millisecond, 0, zap.NewNop())

	_, err := c.Classify(context.Background(), "xray.jpg", []byte("img"))
	assert.Error(t, err)
}

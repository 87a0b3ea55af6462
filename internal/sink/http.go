package sink

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultRequestTimeout = 10 * time.Second

type HTTPConfig struct {
	BaseURL        string
	StreamPath     string
	RequestTimeout time.Duration
}

type streamPayload struct {
	AudioData       string `json:"audioData"`
	SessionID       string `json:"sessionId"`
	BypassFiltering bool   `json:"bypassFiltering"`
}

// HTTPSink posts base64-encoded audio to the backend stream endpoint. Each
// sink instance carries one session id for its whole lifetime.
type HTTPSink struct {
	client    *http.Client
	endpoint  string
	baseURL   string
	sessionID string
	log       *slog.Logger
}

func NewHTTPSink(cfg HTTPConfig, log *slog.Logger) *HTTPSink {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	path := cfg.StreamPath
	if path == "" {
		path = "/stream/audio"
	}
	return &HTTPSink{
		client:    &http.Client{Timeout: timeout},
		endpoint:  cfg.BaseURL + path,
		baseURL:   cfg.BaseURL,
		sessionID: uuid.NewString(),
		log:       log,
	}
}

func (s *HTTPSink) SessionID() string {
	return s.sessionID
}

// Probe checks that the backend is reachable at all. Used once at startup;
// the delivery engine has its own outage detection afterwards.
func (s *HTTPSink) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPSink) Send(ctx context.Context, payload []byte, bypass bool) bool {
	body, err := json.Marshal(streamPayload{
		AudioData:       base64.StdEncoding.EncodeToString(payload),
		SessionID:       s.sessionID,
		BypassFiltering: bypass,
	})
	if err != nil {
		s.log.Error("stream payload marshal failed", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("stream send failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		s.log.Debug("stream send rejected", "status", resp.StatusCode)
		return false
	}
	return true
}

package sink

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	handshakeWait   = 10 * time.Second
	sessionStartMsg = "session_start"
	audioFrameMsg   = "audio_frame"
)

type WSConfig struct {
	URL string
}

type wsMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AudioData string `json:"audio_data,omitempty"`
	Bypass    bool   `json:"bypass,omitempty"`
}

// WSSink streams audio frames as JSON messages over a websocket. The
// connection is dialed lazily and dropped on any write failure; the next
// Send redials. Delivery retries stay the engine's concern.
type WSSink struct {
	url       string
	sessionID string
	log       *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSSink(cfg WSConfig, log *slog.Logger) *WSSink {
	if log == nil {
		log = slog.Default()
	}
	return &WSSink{
		url:       cfg.URL,
		sessionID: uuid.NewString(),
		log:       log,
	}
}

func (s *WSSink) SessionID() string {
	return s.sessionID
}

func (s *WSSink) Send(ctx context.Context, payload []byte, bypass bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if !s.dial(ctx) {
			return false
		}
	}

	msg := wsMessage{
		Type:      audioFrameMsg,
		SessionID: s.sessionID,
		AudioData: base64.StdEncoding.EncodeToString(payload),
		Bypass:    bypass,
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.log.Debug("ws send failed, dropping connection", "error", err)
		s.drop()
		return false
	}
	return true
}

func (s *WSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// dial is called with s.mu held.
func (s *WSSink) dial(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeWait)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.url, nil)
	if err != nil {
		s.log.Debug("ws dial failed", "url", s.url, "error", err)
		return false
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsMessage{Type: sessionStartMsg, SessionID: s.sessionID}); err != nil {
		_ = conn.Close()
		return false
	}

	s.conn = conn
	s.log.Info("ws sink connected", "url", s.url, "session_id", s.sessionID)
	return true
}

// drop is called with s.mu held.
func (s *WSSink) drop() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

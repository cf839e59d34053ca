package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roach88/atlas/internal/incident"
)

// Subprotocol is the GraphQL over WebSocket protocol name.
const Subprotocol = "graphql-transport-ws"

// DefaultAckTimeout bounds the wait for connection_ack.
const DefaultAckTimeout = 10 * time.Second

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscriber subscribes to onNewIncident over graphql-transport-ws.
type WSSubscriber struct {
	url        string
	apiKey     string
	dialer     *websocket.Dialer
	ackTimeout time.Duration
	logger     *slog.Logger
}

var _ Subscriber = (*WSSubscriber)(nil)

// NewWSSubscriber creates a subscriber for the websocket url.
func NewWSSubscriber(url, apiKey string, logger *slog.Logger) *WSSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSSubscriber{
		url:    url,
		apiKey: apiKey,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{Subprotocol},
		},
		ackTimeout: DefaultAckTimeout,
		logger:     logger,
	}
}

// Subscribe dials, completes the connection handshake and starts the
// subscription. The returned session reads on its own goroutine until
// Unsubscribe or a transport error.
func (s *WSSubscriber) Subscribe(ctx context.Context, h Handler) (Subscription, error) {
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("x-api-key", s.apiKey)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.url, err)
	}

	sub := &wsSubscription{
		conn:   conn,
		id:     uuid.Must(uuid.NewV7()).String(),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	if err := s.handshake(ctx, sub); err != nil {
		conn.Close()
		return nil, err
	}

	payload, _ := json.Marshal(gqlRequest{Query: OnNewIncidentQuery})
	if err := sub.write(wsMessage{ID: sub.id, Type: msgSubscribe, Payload: payload}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	s.logger.Debug("subscribed", "id", sub.id)
	go sub.readLoop(h)
	return sub, nil
}

func (s *WSSubscriber) handshake(ctx context.Context, sub *wsSubscription) error {
	deadline := time.Now().Add(s.ackTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	sub.conn.SetReadDeadline(deadline)
	defer sub.conn.SetReadDeadline(time.Time{})

	initPayload, _ := json.Marshal(map[string]string{"x-api-key": s.apiKey})
	if err := sub.write(wsMessage{Type: msgConnectionInit, Payload: initPayload}); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}
	for {
		var msg wsMessage
		if err := sub.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("await connection_ack: %w", err)
		}
		switch msg.Type {
		case msgConnectionAck:
			return nil
		case msgPing:
			if err := sub.write(wsMessage{Type: msgPong}); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		default:
			return fmt.Errorf("unexpected %q before connection_ack", msg.Type)
		}
	}
}

// wsSubscription is one websocket session carrying one subscription.
type wsSubscription struct {
	conn   *websocket.Conn
	id     string
	logger *slog.Logger

	writeMu  sync.Mutex
	closed   atomic.Bool
	failOnce sync.Once
	stopOnce sync.Once
	done     chan struct{}
}

func (s *wsSubscription) write(msg wsMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// Unsubscribe sends complete and closes the connection.
func (s *wsSubscription) Unsubscribe() {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		s.write(wsMessage{ID: s.id, Type: msgComplete})
		s.conn.Close()
	})
}

func (s *wsSubscription) fail(h Handler, err error) {
	if s.closed.Load() {
		return
	}
	s.failOnce.Do(func() {
		s.logger.Warn("subscription failed", "id", s.id, "error", err)
		if h.OnError != nil {
			h.OnError(err)
		}
	})
}

func (s *wsSubscription) readLoop(h Handler) {
	defer close(s.done)
	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.fail(h, err)
			return
		}

		switch msg.Type {
		case msgNext:
			if msg.ID != s.id {
				continue
			}
			inc, ok := decodeNext(msg.Payload, s.logger)
			if ok && h.OnIncident != nil && !s.closed.Load() {
				h.OnIncident(inc)
			}
		case msgError:
			s.fail(h, fmt.Errorf("subscription error: %s", string(msg.Payload)))
			return
		case msgComplete:
			s.fail(h, ErrCompleted)
			return
		case msgPing:
			if err := s.write(wsMessage{Type: msgPong}); err != nil {
				s.fail(h, err)
				return
			}
		}
	}
}

func decodeNext(payload json.RawMessage, logger *slog.Logger) (incident.Incident, bool) {
	var p struct {
		Data struct {
			OnNewIncident *incident.Record `json:"onNewIncident"`
		} `json:"data"`
		Errors []gqlError `json:"errors"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		logger.Warn("malformed subscription payload", "error", err)
		return incident.Incident{}, false
	}
	if len(p.Errors) > 0 {
		logger.Warn("graphql errors", "errors", gqlResponse{Errors: p.Errors}.errorText())
	}
	if p.Data.OnNewIncident == nil {
		return incident.Incident{}, false
	}
	return incident.Normalize(*p.Data.OnNewIncident)
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/atlas/internal/incident"
)

// wsServer is a minimal graphql-transport-ws server. After the subscribe
// message arrives the test drives it through the send channel.
type wsServer struct {
	srv        *httptest.Server
	send       chan wsMessage
	subscribed chan wsMessage
	completed  chan string
	rejectInit bool
	apiKey     string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{
		send:       make(chan wsMessage, 16),
		subscribed: make(chan wsMessage, 1),
		completed:  make(chan string, 1),
	}
	upgrader := websocket.Upgrader{Subprotocols: []string{Subprotocol}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.apiKey = r.Header.Get("x-api-key")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var initMsg wsMessage
		if err := conn.ReadJSON(&initMsg); err != nil || initMsg.Type != msgConnectionInit {
			return
		}
		if s.rejectInit {
			conn.WriteJSON(wsMessage{Type: "connection_error"})
			return
		}
		conn.WriteJSON(wsMessage{Type: msgPing})
		var pong wsMessage
		if err := conn.ReadJSON(&pong); err != nil || pong.Type != msgPong {
			return
		}
		conn.WriteJSON(wsMessage{Type: msgConnectionAck})

		var sub wsMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		s.subscribed <- sub

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				var msg wsMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				if msg.Type == msgComplete {
					s.completed <- msg.ID
					return
				}
			}
		}()

		for msg := range s.send {
			if msg.ID == "" && msg.Type == msgNext {
				msg.ID = sub.ID
			}
			if msg.Type == "close" {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		wg.Wait()
	}))
	t.Cleanup(func() {
		close(s.send)
		s.srv.Close()
	})
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func nextMessage(t *testing.T, inc string) wsMessage {
	t.Helper()
	payload := `{"data":{"onNewIncident":` + inc + `}}`
	return wsMessage{Type: msgNext, Payload: json.RawMessage(payload)}
}

func TestWSSubscriber_DeliversIncidents(t *testing.T) {
	srv := newWSServer(t)
	got := make(chan incident.Incident, 4)
	sub, err := NewWSSubscriber(srv.url(), "secret", nil).Subscribe(context.Background(), Handler{
		OnIncident: func(inc incident.Incident) { got <- inc },
		OnError:    func(err error) { t.Errorf("unexpected error: %v", err) },
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	subMsg := <-srv.subscribed
	assert.Equal(t, msgSubscribe, subMsg.Type)
	id, err := uuid.Parse(subMsg.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, "secret", srv.apiKey)

	srv.send <- nextMessage(t, `{"incidentId":"x","location":"Hamburg","latitude":53.5,"longitude":10,"severity":"low"}`)
	srv.send <- wsMessage{ID: "other", Type: msgNext, Payload: json.RawMessage(`{"data":{"onNewIncident":{"incidentId":"ignored"}}}`)}
	srv.send <- nextMessage(t, `{"incidentId":"y"}`)

	select {
	case inc := <-got:
		assert.Equal(t, "x", inc.ID)
		assert.Equal(t, 53.5, inc.Latitude)
	case <-time.After(2 * time.Second):
		t.Fatal("no incident delivered")
	}
	select {
	case inc := <-got:
		assert.Equal(t, "y", inc.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("second incident not delivered")
	}
}

func TestWSSubscriber_UnsubscribeSendsComplete(t *testing.T) {
	srv := newWSServer(t)
	errs := make(chan error, 1)
	sub, err := NewWSSubscriber(srv.url(), "", nil).Subscribe(context.Background(), Handler{
		OnError: func(err error) { errs <- err },
	})
	require.NoError(t, err)
	subMsg := <-srv.subscribed

	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case id := <-srv.completed:
		assert.Equal(t, subMsg.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw complete")
	}
	select {
	case err := <-errs:
		t.Fatalf("unsubscribe must not raise a transport error: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWSSubscriber_ServerErrorSignalsOnce(t *testing.T) {
	srv := newWSServer(t)
	errs := make(chan error, 4)
	sub, err := NewWSSubscriber(srv.url(), "", nil).Subscribe(context.Background(), Handler{
		OnError: func(err error) { errs <- err },
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-srv.subscribed

	srv.send <- wsMessage{Type: msgComplete}

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrCompleted))
	case <-time.After(2 * time.Second):
		t.Fatal("no transport error")
	}
	select {
	case err := <-errs:
		t.Fatalf("error signalled twice: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWSSubscriber_ConnectionDropIsTransportError(t *testing.T) {
	srv := newWSServer(t)
	errs := make(chan error, 1)
	sub, err := NewWSSubscriber(srv.url(), "", nil).Subscribe(context.Background(), Handler{
		OnError: func(err error) { errs <- err },
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-srv.subscribed

	srv.send <- wsMessage{Type: "close"}

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("connection drop not reported")
	}
}

func TestWSSubscriber_RejectedHandshake(t *testing.T) {
	srv := newWSServer(t)
	srv.rejectInit = true

	_, err := NewWSSubscriber(srv.url(), "", nil).Subscribe(context.Background(), Handler{})

	require.Error(t, err)
}

func TestWSSubscriber_DialFailure(t *testing.T) {
	_, err := NewWSSubscriber("ws://127.0.0.1:1/graphql", "", nil).Subscribe(context.Background(), Handler{})

	require.Error(t, err)
}

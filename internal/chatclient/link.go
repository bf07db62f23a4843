package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"vetcare/internal/middleware"

	"github.com/gorilla/websocket"
)

// Link is the live-hub connection the controller drives. Connect returns a
// channel that closes when the connection drops; the controller owns
// reconnection.
type Link interface {
	Connect(ctx context.Context) (<-chan Event, error)
	Send(ctx context.Context, cmd Command) error
	Close() error
}

const (
	linkWriteWait = 10 * time.Second
	linkPongWait  = 60 * time.Second
)

// WSLink dials the hub over a websocket, authenticating with a single-use
// ticket fetched through the REST API.
type WSLink struct {
	wsURL string
	api   API

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSLink creates a hub link. wsURL is the full websocket endpoint, e.g.
// "ws://localhost:8460/api/ws/".
func NewWSLink(wsURL string, api API) *WSLink {
	return &WSLink{wsURL: wsURL, api: api}
}

func (l *WSLink) Connect(ctx context.Context) (<-chan Event, error) {
	ticket, err := l.api.IssueTicket(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue ticket: %w", err)
	}

	u, err := url.Parse(l.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("ticket", ticket)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(linkPongWait))
	})

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		defer func() { _ = conn.Close() }()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				middleware.Logger.Warn("chatclient: bad frame", "error", err)
				continue
			}
			select {
			case events <- ev:
			default:
				// The controller is saturated; best-effort events are
				// droppable, REST remains authoritative.
				middleware.Logger.Warn("chatclient: event dropped", "type", ev.Type)
			}
		}
	}()

	return events, nil
}

func (l *WSLink) Send(_ context.Context, cmd Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return fmt.Errorf("link not connected")
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(linkWriteWait)); err != nil {
		return err
	}
	return l.conn.WriteJSON(cmd)
}

func (l *WSLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := l.conn.Close()
	l.conn = nil
	return err
}

package websocket

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // SDP offers run to a few KB
	sendBuffer     = 64
)

// NewUpgrader returns an upgrader that accepts the configured browser
// origins. Requests without an Origin header (native clients, tests) are
// accepted; "*" accepts everything.
func NewUpgrader(allowedOrigins []string) *gorillawebsocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return &gorillawebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			_, ok := allowed[strings.TrimRight(origin, "/")]
			return ok
		},
	}
}

// Client is one authenticated WebSocket connection with a buffered outbound
// queue. Send is never closed; Close signals the writer to stop instead, so
// concurrent Enqueue calls cannot panic.
type Client struct {
	ID     string
	UserID uuid.UUID
	Role   string
	Topics []string
	Send   chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

func NewClient(userID uuid.UUID, role string, topics ...string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		Topics: topics,
		Send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Enqueue queues msg without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) Enqueue(msg []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Serve pumps messages between ws and client until either side goes away.
// onMessage runs on the reader goroutine for every inbound frame. Serve
// blocks until the reader exits and always closes the client and socket.
func Serve(ws *gorillawebsocket.Conn, client *Client, logger zerolog.Logger, onMessage func([]byte)) {
	go writePump(ws, client)
	readPump(ws, client, logger, onMessage)
}

func readPump(ws *gorillawebsocket.Conn, client *Client, logger zerolog.Logger, onMessage func([]byte)) {
	defer func() {
		client.Close()
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				logger.Debug().Err(err).Str("client_id", client.ID).Msg("websocket closed unexpectedly")
			}
			return
		}
		onMessage(message)
	}
}

func writePump(ws *gorillawebsocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-client.Done():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
			return
		case msg := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}

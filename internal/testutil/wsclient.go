package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a WebSocket test client speaking the JSON envelope protocol.
type WSClient struct {
	Conn *websocket.Conn
	t    *testing.T
}

// HTTPToWS rewrites an http:// test server URL to ws://.
func HTTPToWS(url string) string {
	return "ws" + strings.TrimPrefix(url, "http")
}

// NewWSClient dials url and returns a test client.
//
// Precondition: url must be a ws:// or wss:// endpoint with a listening server.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string, header http.Header) *WSClient {
	t.Helper()
	start := time.Now()

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{Conn: conn, t: t}
}

// Send writes v as a JSON text frame.
func (c *WSClient) Send(v map[string]any) {
	c.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("encoding frame: %v", err)
	}
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("sending frame: %v", err)
	}
}

// ReadUntil reads frames until one has the given type, discarding the rest.
//
// Postcondition: Returns the decoded message, or fails on timeout.
func (c *WSClient) ReadUntil(typ string, timeout time.Duration) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	if err := c.Conn.SetReadDeadline(deadline); err != nil {
		c.t.Fatalf("setting read deadline: %v", err)
	}
	defer c.Conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %q: %v", typ, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			c.t.Fatalf("decoding frame %q: %v", data, err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
}

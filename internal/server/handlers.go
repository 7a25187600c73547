// Package server exposes HTTP handlers for the WebSocket gateway: the upgrade
// endpoint, the health check, and a built-in test page.
package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// wsConn carries one record per WebSocket text frame.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(protocol.MaxRecordSize)
	// Sessions have no idle timeout; drop any deadline left over from the HTTP server.
	_ = conn.SetReadDeadline(time.Time{})
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadRecord() (string, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (c *wsConn) WriteRecord(text string) error {
	if len(text) > protocol.MaxRecordSize {
		return errors.Wrapf(protocol.ErrRecordTooLarge, "%d bytes", len(text))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close may run while a write is blocked; WriteControl and Close are safe to call
// concurrently with WriteMessage.
func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// WebSocketHandler upgrades GET requests and hands the connection to a new session.
// The session speaks the same record protocol as the TCP listener.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.Handle(newWSConn(conn))
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running!")
}

// TestPageHandler serves an HTML page that logs in over the WebSocket gateway and
// shows the room.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		logger.WithError(err).Warn("error writing test page")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Room Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; white-space: pre-wrap; }
        input[type="text"], input[type="password"] { padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>Chat Room Test</h1>
    <div>
        <input type="text" id="username" placeholder="Username">
        <input type="password" id="password" placeholder="Password">
        <button onclick="login()">Log in</button>
    </div>
    <div id="messages"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="quitButton" onclick="quit()" disabled>Quit</button>
    </div>
    <script>
        let ws = null;
        let admitted = false;
        const messages = document.getElementById('messages');
        const input = document.getElementById('messageInput');

        function show(text) {
            const line = document.createElement('div');
            line.textContent = text;
            messages.appendChild(line);
            messages.scrollTop = messages.scrollHeight;
        }

        function isWelcome(text) {
            return text.startsWith('Account Created Successfully') || text.startsWith('Login Successful');
        }

        function sendCredentials() {
            ws.send(document.getElementById('username').value);
            ws.send(document.getElementById('password').value);
        }

        function login() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                sendCredentials();
                return;
            }
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = sendCredentials;
            ws.onmessage = function(event) {
                if (!admitted && isWelcome(event.data)) {
                    admitted = true;
                    input.disabled = false;
                    document.getElementById('quitButton').disabled = false;
                }
                show(event.data);
            };
            ws.onclose = function() {
                show('Connection closed');
                admitted = false;
                input.disabled = true;
                ws = null;
            };
        }

        function quit() {
            if (ws) {
                ws.send('quit');
            }
        }

        input.addEventListener('keypress', function(e) {
            if (e.key === 'Enter' && input.value.trim() !== '' && admitted) {
                ws.send(input.value);
                input.value = '';
            }
        });
    </script>
</body>
</html>`

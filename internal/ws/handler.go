package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/remote-agent-terminal/ptyhost/internal/metrics"
	"github.com/remote-agent-terminal/ptyhost/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10 // must stay below pongWait
	maxMessageSize = 8192              // largest client frame accepted
)

// Controller receives input and resize requests arriving over a connection.
// *session.Table satisfies it.
type Controller interface {
	Write(id string, data []byte) bool
	Resize(id string, rows, cols uint16) bool
}

// Handler upgrades event stream connections and pumps frames to them.
type Handler struct {
	hubs       *HubManager
	controller Controller
	metrics    *metrics.Metrics
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. controller may be nil, in
// which case stdin and resize messages are ignored.
func NewHandler(hubs *HubManager, controller Controller, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hubs:       hubs,
		controller: controller,
		metrics:    m,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// SetCheckOrigin sets a custom origin checker for the upgrader.
func (h *Handler) SetCheckOrigin(fn func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = fn
}

// HandleConnection upgrades the request and subscribes the connection to topic.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, topic string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := h.hubs.Join(topic, conn)
	h.metrics.ConnectionOpened()
	h.logger.Debug("Event stream connected", zap.String("topic", topic))

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// handleMessage processes incoming messages from clients.
func (h *Handler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case MessageTypePing:
		h.reply(client, &Message{Type: MessageTypePong})
	case MessageTypeStdin:
		if msg.Data == "" || h.controller == nil {
			return
		}
		h.controller.Write(sessionIDFromTopic(client.Topic()), []byte(msg.Data))
	case MessageTypeResize:
		if msg.Rows == 0 || msg.Cols == 0 || h.controller == nil {
			return
		}
		h.controller.Resize(sessionIDFromTopic(client.Topic()), msg.Rows, msg.Cols)
	default:
		h.reply(client, &Message{Type: MessageTypeError, Error: "unknown message type: " + string(msg.Type)})
	}
}

func sessionIDFromTopic(topic string) string {
	return strings.TrimPrefix(topic, model.TopicPrefix)
}

func (h *Handler) reply(client *Client, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	client.Send(data)
}

// readPump decodes client frames until the connection fails, then removes
// the client from its hub.
func (h *Handler) readPump(client *Client) {
	conn := client.Conn()
	defer func() {
		client.Leave()
		conn.Close()
		h.metrics.ConnectionClosed()
		h.logger.Debug("Event stream disconnected", zap.String("topic", client.Topic()))
	}()

	conn.SetReadLimit(maxMessageSize)
	extend := func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend("")
	conn.SetPongHandler(extend)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.reply(client, &Message{Type: MessageTypeError, Error: "malformed frame"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Event stream read failed", zap.String("topic", client.Topic()), zap.Error(err))
			}
			return
		}
		h.handleMessage(client, &msg)
	}
}

// writePump writes queued frames, one per WebSocket message, and pings the
// peer. It returns once the client is closed or a write fails.
func (h *Handler) writePump(client *Client) {
	conn := client.Conn()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-client.Queue():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				client.Close()
				return
			}
		case <-client.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}

package ws

// MessageType is the "type" field of a frame.
type MessageType string

// Frames sent by clients.
const (
	MessageTypeStdin  MessageType = "stdin"
	MessageTypeResize MessageType = "resize"
	MessageTypePing   MessageType = "ping"
)

// Frames sent by the server.
const (
	MessageTypeOutput MessageType = "output"
	MessageTypePong   MessageType = "pong"
	MessageTypeError  MessageType = "error"
)

// Message is one JSON frame in either direction. Only the fields relevant
// to Type are set.
type Message struct {
	Type  MessageType `json:"type"`
	Topic string      `json:"topic,omitempty"`
	Data  string      `json:"data,omitempty"`
	Rows  uint16      `json:"rows,omitempty"`
	Cols  uint16      `json:"cols,omitempty"`
	Error string      `json:"error,omitempty"`
}

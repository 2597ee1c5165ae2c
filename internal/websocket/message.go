package websocket

// MessageType tells requests and responses apart on the wire.
type MessageType string

const (
	TypeRequest  MessageType = "request"
	TypeResponse MessageType = "response"
)

// Message is one frame on the connection.
type Message struct {
	Type     MessageType `json:"type"`
	Request  *Request    `json:"request,omitempty"`
	Response *Response   `json:"response,omitempty"`
}

// Request asks the peer to do something; Body is opaque to this package.
type Request struct {
	ID   string `json:"id"`
	Verb string `json:"verb"`
	Path string `json:"path"`
	Body []byte `json:"body,omitempty"`
}

// Response answers the request with the same ID.
type Response struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Body    []byte `json:"body,omitempty"`
}

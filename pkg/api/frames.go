package api

// WebSocket frame types for the streaming transport. Chunk frames carry
// incremental text; a message frame closes out one request; error frames
// report a failed request without closing the connection.
const (
	FrameChunk   = "chunk"
	FrameMessage = "message"
	FrameError   = "error"
)

// Frame is one server-to-client WebSocket message.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Subprotocol the server accepts during the WebSocket handshake. The
// client offers [format, token, tenant]; only this format is understood.
const SubprotocolJSON = "json"

// WebSocket close codes used during the handshake.
const (
	CloseNotFound      = 1007
	CloseUnauthorized  = 1008
	CloseInternalError = 1011
)

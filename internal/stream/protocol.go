// Package stream implements the duplex search channel: one websocket
// connection carries exactly one JSON-RPC style request and streams its
// results back until a terminal close frame.
package stream

import "encoding/json"

// Supported request methods.
const (
	MethodStream = "stream"
	MethodPing   = "ping"
	MethodPlex   = "plex"
)

// Error codes carried in error frames. JSON-RPC reserved codes for protocol
// failures, server range for application failures.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeAuthFailure    = -32000
	CodeUpstreamError  = -32001
)

// Close reasons sent with the terminal close frame.
const (
	ReasonPong     = "Pong"
	ReasonFinished = "Finished streaming"
)

// Request is the inbound frame envelope.
type Request struct {
	JSONRPC       string          `json:"jsonrpc"`
	ID            int             `json:"id"`
	Method        string          `json:"method"`
	Params        json.RawMessage `json:"params"`
	Authorization string          `json:"authorization"`
}

// StreamParams are the parameters of a "stream" request.
type StreamParams struct {
	Type    string `json:"type"`
	TmdbID  int    `json:"tmdb_id"`
	Season  *int   `json:"season,omitempty"`
	Episode *int   `json:"episode,omitempty"`
}

// PlexParams are the parameters of a "plex" request.
type PlexParams struct {
	TmdbID    int    `json:"tmdb_id"`
	MediaType string `json:"media_type"`
}

// ErrorBody is the error object of an error frame.
type ErrorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Data    any    `json:"data,omitempty"`
}

// ErrorFrame is the outbound frame emitted on any terminal failure.
type ErrorFrame struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Error   ErrorBody `json:"error"`
}

// NewErrorFrame builds an error frame answering request id.
func NewErrorFrame(id, code int, message string, data any) ErrorFrame {
	return ErrorFrame{
		JSONRPC: "2.0",
		ID:      id,
		Error: ErrorBody{
			Message: message,
			Code:    code,
			Data:    data,
		},
	}
}

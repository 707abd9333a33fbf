package acp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// IncomingMessage is one JSON-RPC message read off the wire. The ID is kept
// raw so responses echo exactly what the client sent, whatever its type.
type IncomingMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsRequest reports whether the message expects a response.
func (m *IncomingMessage) IsRequest() bool {
	return len(m.ID) > 0 && m.Method != ""
}

// IsNotification reports whether the message is a fire-and-forget call.
func (m *IncomingMessage) IsNotification() bool {
	return len(m.ID) == 0 && m.Method != ""
}

// Conn is a newline-delimited JSON-RPC connection. Reads happen from a
// single goroutine; writes are serialized so concurrent turn handlers never
// interleave partial lines.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	wmu    sync.Mutex
	logger *zap.Logger
}

// NewConn wraps a reader/writer pair, typically stdin/stdout.
func NewConn(r io.Reader, w io.Writer, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		reader: bufio.NewReader(r),
		writer: w,
		logger: logger,
	}
}

// Read returns the next well-formed message, skipping lines that do not
// parse. io.EOF means the client went away.
func (c *Conn) Read() (*IncomingMessage, error) {
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				// A final unterminated line still counts.
				var msg IncomingMessage
				if jerr := json.Unmarshal(line, &msg); jerr == nil {
					return &msg, nil
				}
			}
			return nil, err
		}

		if len(line) <= 1 {
			continue
		}

		var msg IncomingMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Debug("ACP received malformed line, skipping",
				zap.ByteString("line", line))
			continue
		}
		return &msg, nil
	}
}

// SendResult sends a success response, echoing the raw request ID.
func (c *Conn) SendResult(id json.RawMessage, result interface{}) error {
	return c.writeMessage(&JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	})
}

// SendError sends an error response, echoing the raw request ID.
func (c *Conn) SendError(id json.RawMessage, code int, message string) error {
	return c.writeMessage(&JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	})
}

// SendNotification sends a notification (no ID, no response expected).
func (c *Conn) SendNotification(method string, params interface{}) error {
	return c.writeMessage(&JSONRPCNotification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	})
}

func (c *Conn) writeMessage(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

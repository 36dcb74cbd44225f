package stomp

import (
	"bytes"
	"sort"
	"strings"
)

// Frame commands exchanged with the broker.
const (
	CommandConnect     = "CONNECT"
	CommandConnected   = "CONNECTED"
	CommandSend        = "SEND"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandDisconnect  = "DISCONNECT"
	CommandMessage     = "MESSAGE"
	CommandReceipt     = "RECEIPT"
	CommandError       = "ERROR"
)

// Header names used by the client and the broker.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderHost          = "host"
	HeaderLogin         = "login"
	HeaderPasscode      = "passcode"
	HeaderDestination   = "destination"
	HeaderID            = "id"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
	HeaderMessage       = "message"
	HeaderVersion       = "version"
	HeaderSession       = "session"
	HeaderFileName      = "file name"
)

// ProtocolVersion is the STOMP version offered in CONNECT.
const ProtocolVersion = "1.2"

// FrameTerminator marks the end of a frame on the wire.
const FrameTerminator byte = 0x00

// Frame is one decoded protocol unit.
type Frame struct {
	Command string
	Headers map[string]string
	Body    string
}

// NewFrame returns a frame with an initialized header map.
func NewFrame(command string) *Frame {
	return &Frame{Command: command, Headers: make(map[string]string)}
}

// SetHeader sets a header and returns the frame for chaining.
func (frame *Frame) SetHeader(key string, value string) *Frame {
	if frame.Headers == nil {
		frame.Headers = make(map[string]string)
	}
	frame.Headers[key] = value
	return frame
}

// Header returns the header value and whether it was present.
func (frame *Frame) Header(key string) (string, bool) {
	if frame == nil || frame.Headers == nil {
		return "", false
	}
	value, exists := frame.Headers[key]
	return value, exists
}

// Bytes encodes the frame without the wire terminator.
func (frame *Frame) Bytes() []byte {
	return Encode(frame.Command, frame.Headers, frame.Body)
}

// Encode renders a frame as command line, header lines, a blank line and the body.
// The terminator byte is left to the transport.
func Encode(command string, headers map[string]string, body string) []byte {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buffer bytes.Buffer
	buffer.Grow(len(command) + len(body) + 16*len(keys) + 2)
	buffer.WriteString(command)
	buffer.WriteByte('\n')
	for _, key := range keys {
		buffer.WriteString(key)
		buffer.WriteByte(':')
		buffer.WriteString(headers[key])
		buffer.WriteByte('\n')
	}
	buffer.WriteByte('\n')
	buffer.WriteString(body)
	return buffer.Bytes()
}

// Decode parses raw frame text. It never fails: malformed header lines are
// skipped and an unparseable input yields a frame with an empty command.
func Decode(raw string) Frame {
	frame := Frame{Headers: make(map[string]string)}

	raw = strings.TrimSuffix(raw, string(FrameTerminator))
	raw = strings.TrimLeft(raw, "\r\n")
	if raw == "" {
		return frame
	}

	lines := strings.Split(raw, "\n")
	frame.Command = strings.TrimSuffix(lines[0], "\r")

	index := 1
	for ; index < len(lines); index++ {
		line := strings.TrimSuffix(lines[index], "\r")
		if line == "" {
			index++
			break
		}
		separator := strings.IndexByte(line, ':')
		if separator < 0 {
			continue
		}
		frame.Headers[line[:separator]] = line[separator+1:]
	}

	if index < len(lines) {
		frame.Body = strings.Join(lines[index:], "\n")
	}
	return frame
}

package stomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	encoded := string(Encode(CommandSubscribe, map[string]string{
		HeaderReceipt:     "1",
		HeaderDestination: "/A_B",
		HeaderID:          "1",
	}, ""))

	require.Equal(t, "SUBSCRIBE\ndestination:/A_B\nid:1\nreceipt:1\n\n", encoded)
	assert.NotContains(t, encoded, string(FrameTerminator), "codec must not append the terminator")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		command string
		headers map[string]string
		body    string
	}{
		{name: "no headers no body", command: CommandDisconnect, headers: map[string]string{}},
		{name: "headers only", command: CommandConnect, headers: map[string]string{
			HeaderAcceptVersion: "1.2", HeaderHost: "localhost", HeaderLogin: "alice", HeaderPasscode: "x",
		}},
		{name: "value with colon", command: CommandSend, headers: map[string]string{
			HeaderDestination: "/A_B", "note": "a:b:c",
		}, body: "x"},
		{name: "multi-line body", command: CommandMessage, headers: map[string]string{
			HeaderDestination: "/A_B",
		}, body: "user: bob\n\ndescription:\nline one\nline two\n"},
		{name: "body with blank first line", command: CommandSend, headers: map[string]string{}, body: "\nafter blank"},
		{name: "header key with spaces", command: CommandSend, headers: map[string]string{HeaderFileName: "events.json"}, body: "b"},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			decoded := Decode(string(Encode(testCase.command, testCase.headers, testCase.body)))
			assert.Equal(t, testCase.command, decoded.Command)
			assert.Equal(t, testCase.headers, decoded.Headers)
			assert.Equal(t, testCase.body, decoded.Body)
		})
	}
}

func TestDecodeIsPermissive(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		command string
		headers map[string]string
		body    string
	}{
		{name: "empty", raw: "", command: "", headers: map[string]string{}},
		{name: "only terminator", raw: "\x00", command: "", headers: map[string]string{}},
		{name: "command only", raw: "CONNECTED", command: CommandConnected, headers: map[string]string{}},
		{name: "crlf lines", raw: "RECEIPT\r\nreceipt-id:7\r\n\r\n", command: CommandReceipt, headers: map[string]string{HeaderReceiptID: "7"}},
		{name: "malformed header skipped", raw: "MESSAGE\nnot a header\ndestination:/A_B\n\nbody", command: CommandMessage,
			headers: map[string]string{HeaderDestination: "/A_B"}, body: "body"},
		{name: "duplicate header last wins", raw: "ERROR\nmessage:first\nmessage:second\n\n", command: CommandError,
			headers: map[string]string{HeaderMessage: "second"}},
		{name: "leading heartbeats", raw: "\n\nCONNECTED\nversion:1.2\n\n", command: CommandConnected, headers: map[string]string{HeaderVersion: "1.2"}},
		{name: "trailing terminator stripped", raw: "ERROR\n\nbad\x00", command: CommandError, headers: map[string]string{}, body: "bad"},
		{name: "empty value", raw: "SEND\nfile name:\n\n", command: CommandSend, headers: map[string]string{HeaderFileName: ""}},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			frame := Decode(testCase.raw)
			assert.Equal(t, testCase.command, frame.Command)
			assert.Equal(t, testCase.headers, frame.Headers)
			assert.Equal(t, testCase.body, frame.Body)
		})
	}
}

func TestDecodedFrameHeaderLookup(t *testing.T) {
	frame := Decode("RECEIPT\nreceipt-id:1\n\n")
	receiptID, exists := frame.Header(HeaderReceiptID)

	assert.True(t, exists)
	assert.Equal(t, "1", receiptID)
}

func TestFrameHelpers(t *testing.T) {
	var empty *Frame
	_, exists := empty.Header(HeaderID)
	assert.False(t, exists, "nil frame must not report headers")

	frame := &Frame{Command: CommandSend}
	frame.SetHeader(HeaderDestination, "/A_B").SetHeader(HeaderDestination, "/C_D")
	frame.Body = "payload"
	value, _ := frame.Header(HeaderDestination)
	assert.Equal(t, "/C_D", value, "last write wins")
	assert.Equal(t, "SEND\ndestination:/C_D\n\npayload", string(frame.Bytes()))
}

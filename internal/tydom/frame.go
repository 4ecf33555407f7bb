package tydom

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Frame constants. Every websocket message carries one HTTP/1.1 message.
const (
	headerTransacID = "Transac-Id"
	headerURIOrigin = "Uri-Origin"

	// remotePrefix marks frames relayed through the cloud mediation server.
	remotePrefix = 0x02

	contentTypeJSON = "application/json; charset=UTF-8"
)

// MessageType distinguishes hub requests from hub responses.
type MessageType string

const (
	MessageRequest  MessageType = "request"
	MessageResponse MessageType = "response"
)

// Message is one decoded frame.
//
// Request frames are pushes initiated by the hub; they carry no status and
// are reported with status 200. For response frames the URI comes from the
// Uri-Origin header and the method is filled in from the pending request
// when the frame answers one.
type Message struct {
	Type      MessageType
	Method    string
	URI       string
	Status    int
	TransacID string
	Header    http.Header
	Body      []byte
}

// encodeRequest renders a request frame.
func encodeRequest(method, uri, transacID string, body []byte, remote bool) []byte {
	var buf bytes.Buffer
	if remote {
		buf.WriteByte(remotePrefix)
	}
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", method, uri)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentTypeJSON)
	fmt.Fprintf(&buf, "%s: %s\r\n", headerTransacID, transacID)
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// parseFrame decodes a frame received from the hub. Chunked bodies are
// de-chunked.
func parseFrame(data []byte) (*Message, error) {
	data = bytes.TrimLeft(data, string([]byte{remotePrefix}))
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	r := bufio.NewReader(bytes.NewReader(data))
	if bytes.HasPrefix(data, []byte("HTTP/")) {
		return parseResponse(r)
	}
	return parseRequest(r)
}

func parseResponse(r *bufio.Reader) (*Message, error) {
	resp, err := http.ReadResponse(r, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrMalformedFrame, err)
	}

	return &Message{
		Type:      MessageResponse,
		URI:       resp.Header.Get(headerURIOrigin),
		Status:    resp.StatusCode,
		TransacID: resp.Header.Get(headerTransacID),
		Header:    resp.Header,
		Body:      body,
	}, nil
}

func parseRequest(r *bufio.Reader) (*Message, error) {
	req, err := http.ReadRequest(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrMalformedFrame, err)
	}

	return &Message{
		Type:      MessageRequest,
		Method:    req.Method,
		URI:       req.RequestURI,
		Status:    http.StatusOK,
		TransacID: req.Header.Get(headerTransacID),
		Header:    req.Header,
		Body:      body,
	}, nil
}

// transacIDString formats a transaction counter.
func transacIDString(n uint64) string {
	return strconv.FormatUint(n, 10)
}

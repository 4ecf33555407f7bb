package tydom

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {
	body := []byte(`[{"name":"position","value":42}]`)

	frame := string(encodeRequest(http.MethodPut, "/devices/1/endpoints/1/data", "7", body, false))

	assert.True(t, strings.HasPrefix(frame, "PUT /devices/1/endpoints/1/data HTTP/1.1\r\n"), "should start with request line")
	assert.Contains(t, frame, "Content-Length: 32\r\n")
	assert.Contains(t, frame, "Transac-Id: 7\r\n")
	assert.True(t, strings.HasSuffix(frame, "\r\n\r\n"+string(body)), "should end with body")
}

func TestEncodeRequest_Remote(t *testing.T) {
	frame := encodeRequest(http.MethodGet, "/ping", "1", nil, true)

	require.NotEmpty(t, frame)
	assert.Equal(t, byte(remotePrefix), frame[0], "remote frames carry the mediation prefix")
	assert.Contains(t, string(frame[1:]), "GET /ping HTTP/1.1\r\n")
}

func TestParseFrame_Response(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Server: Tydom-001A25\r\n" +
		"Uri-Origin: /devices/data\r\n" +
		"Transac-Id: 12\r\n" +
		"Content-Length: 2\r\n" +
		"\r\n[]"

	msg, err := parseFrame([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, MessageResponse, msg.Type)
	assert.Equal(t, "/devices/data", msg.URI)
	assert.Equal(t, http.StatusOK, msg.Status)
	assert.Equal(t, "12", msg.TransacID)
	assert.Equal(t, "[]", string(msg.Body))
	assert.Empty(t, msg.Method, "uncorrelated responses have no method")
}

func TestParseFrame_ChunkedResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Uri-Origin: /devices/data\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"3\r\n[{}\r\n" +
		"1\r\n]\r\n" +
		"0\r\n\r\n"

	msg, err := parseFrame([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "[{}]", string(msg.Body))
}

func TestParseFrame_Request(t *testing.T) {
	body := `[{"id":1,"endpoints":[{"id":1,"error":0,"data":[{"name":"position","value":42}]}]}]`
	raw := "\x02PUT /devices/data HTTP/1.1\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: " + itoa(len(body)) + "\r\n" +
		"\r\n" + body

	msg, err := parseFrame([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, MessageRequest, msg.Type)
	assert.Equal(t, http.MethodPut, msg.Method)
	assert.Equal(t, "/devices/data", msg.URI)
	assert.Equal(t, http.StatusOK, msg.Status, "hub requests count as status 200")

	var devices []DeviceData
	require.NoError(t, json.Unmarshal(msg.Body, &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, ID("1"), devices[0].ID)
}

func TestParseFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "prefix only", raw: "\x02"},
		{name: "garbage", raw: "not a frame"},
		{name: "bad status line", raw: "HTTP/1.1 abc\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFrame([]byte(tt.raw))
			assert.True(t, errors.Is(err, ErrMalformedFrame), "error = %v, want ErrMalformedFrame", err)
		})
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want ID
	}{
		{`1584296123`, "1584296123"},
		{`"1584296123"`, "1584296123"},
		{`"bedroom"`, "bedroom"},
	}

	for _, tt := range tests {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &id))
		assert.Equal(t, tt.want, id)
	}

	var id ID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id), "objects are not ids")
}

func TestPositionOf(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		want   int
		wantOK bool
	}{
		{name: "number", data: `[{"name":"position","value":30}]`, want: 30, wantOK: true},
		{name: "last wins", data: `[{"name":"position","value":30},{"name":"position","value":80}]`, want: 80, wantOK: true},
		{name: "among other points", data: `[{"name":"thermicDefect","value":false},{"name":"position","value":0}]`, want: 0, wantOK: true},
		{name: "string value", data: `[{"name":"position","value":"55"}]`, want: 55, wantOK: true},
		{name: "absent", data: `[{"name":"onFavPos","value":false}]`},
		{name: "null value", data: `[{"name":"position","value":null}]`},
		{name: "fractional", data: `[{"name":"position","value":12.5}]`},
		{name: "no data", data: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ep Endpoint
			require.NoError(t, json.Unmarshal([]byte(`{"id":1,"error":0,"data":`+tt.data+`}`), &ep))

			got, ok := PositionOf(ep)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, int(got))
			}
		})
	}
}

func itoa(n int) string {
	return transacIDString(uint64(n)) //nolint:gosec // test sizes are small
}

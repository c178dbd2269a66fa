package protocol

import (
	"strconv"

	"stsemulator/backend/services/sts-emulator/internal/tally"
)

const badRequest = "HTTP/1.1 400 Bad Request\r\n\r\n"

// Frame wraps body the way model answers: the V-60HD sends the bare body, the V-160HD a
// full HTTP/1.1 response.
func Frame(model tally.Model, body []byte) []byte {
	if !model.HTTPFraming() {
		return append([]byte(nil), body...)
	}
	buf := make([]byte, 0, 80+len(body))
	buf = append(buf, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: "...)
	buf = strconv.AppendInt(buf, int64(len(body)), 10)
	buf = append(buf, "\r\n\r\n"...)
	return append(buf, body...)
}

// Status is the response for a tally state.
func Status(model tally.Model, state tally.State) []byte {
	return Frame(model, []byte(state.String()))
}

// BadRequest is the response for a malformed request, for every model.
func BadRequest() []byte {
	return []byte(badRequest)
}

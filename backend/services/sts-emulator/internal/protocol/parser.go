package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRequest is wrapped by every parse failure.
var ErrMalformedRequest = errors.New("protocol: malformed request")

// Request is a parsed tally status request line.
type Request struct {
	Method  string
	Target  string
	Version string
	// Bank is the optional bank label of the banked form (e.g. "hdmi" in hdmi_1).
	Bank    string
	Channel int
}

// ParseRequestLine parses "GET /tally/<channel-spec>/status <version>". The method and
// version are kept but not checked.
func ParseRequestLine(line string) (*Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: expected method and target, got %d token(s)", ErrMalformedRequest, len(fields))
	}

	req := &Request{Method: fields[0], Target: fields[1]}
	if len(fields) > 2 {
		req.Version = fields[2]
	}

	segments := strings.Split(req.Target, "/")
	if len(segments) != 4 || segments[0] != "" || segments[1] != "tally" || segments[3] != "status" {
		return nil, fmt.Errorf("%w: unexpected target %q", ErrMalformedRequest, req.Target)
	}

	bank, channel, err := ParseChannelSpec(segments[2])
	if err != nil {
		return nil, err
	}
	req.Bank = bank
	req.Channel = channel
	return req, nil
}

// ParseChannelSpec accepts "<integer>" or "<bank>_<integer>". Only the integer matters;
// the bank label is returned as-is.
func ParseChannelSpec(spec string) (string, int, error) {
	if strings.Count(spec, "_") > 1 {
		return "", 0, fmt.Errorf("%w: channel spec %q has more than one separator", ErrMalformedRequest, spec)
	}

	bank, number, banked := strings.Cut(spec, "_")
	if !banked {
		bank, number = "", spec
	} else if bank == "" {
		return "", 0, fmt.Errorf("%w: channel spec %q has an empty bank", ErrMalformedRequest, spec)
	}

	channel, err := strconv.Atoi(number)
	if err != nil {
		return "", 0, fmt.Errorf("%w: channel %q is not an integer", ErrMalformedRequest, number)
	}
	return bank, channel, nil
}

// Package envelope turns offline requests into a flat text token that can be
// carried in an SMS body, and back.
//
// The token is JSON run through base64. It is an encoding, not encryption:
// anyone holding the token can read and alter the request, PIN included.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/punchamoorthee/offpay/internal/domain"
)

// payload is the wire shape. Field names match what existing clients emit.
type payload struct {
	Option     text   `json:"option"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId,omitempty"`
	Amount     amount `json:"amount,omitempty"`
	PIN        text   `json:"pin,omitempty"`
}

// text accepts a JSON string or number.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = text(n.String())
	return nil
}

// amount accepts an integer as a JSON number or numeric string.
type amount int64

func (a *amount) UnmarshalJSON(b []byte) error {
	var t text
	if err := t.UnmarshalJSON(b); err != nil {
		return err
	}
	if t == "" {
		*a = 0
		return nil
	}
	n, err := strconv.ParseInt(string(t), 10, 64)
	if err != nil {
		return fmt.Errorf("amount %q is not an integer", string(t))
	}
	*a = amount(n)
	return nil
}

// Encode serializes req. The output uses the URL-safe base64 alphabet so it
// survives sms: links and form posts untouched.
//
// Envelopes only carry offline requests: req.Channel must be ChannelOffline,
// and Encode accepts exactly the requests Decode returns.
func Encode(req domain.TransferRequest) (string, error) {
	if req.Channel != domain.ChannelOffline {
		return "", fmt.Errorf("encode: channel %q is not offline", string(req.Channel))
	}
	if err := validate(req); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	p := payload{
		Option:     text(req.Op),
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverHandle,
		Amount:     amount(req.Amount),
		PIN:        text(req.PIN),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode. It also takes tokens in the standard base64
// alphabet as produced by browser btoa, with surrounding whitespace.
// Every failure wraps domain.ErrDecode.
func Decode(token string) (domain.TransferRequest, error) {
	var req domain.TransferRequest

	token = strings.TrimSpace(token)
	if token == "" {
		return req, fmt.Errorf("%w: empty envelope", domain.ErrDecode)
	}
	raw, err := decodeBase64(token)
	if err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	// Unmarshal, unlike a streaming decoder, rejects trailing data.
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	out := domain.TransferRequest{
		SenderID:       p.SenderID,
		ReceiverHandle: p.ReceiverID,
		Amount:         int64(p.Amount),
		PIN:            string(p.PIN),
		Channel:        domain.ChannelOffline,
		Op:             domain.Operation(p.Option),
	}
	if err := validate(out); err != nil {
		return req, err
	}
	return out, nil
}

// validate checks the fields each operation needs. Errors wrap domain.ErrDecode.
func validate(req domain.TransferRequest) error {
	if !req.Op.Valid() {
		return fmt.Errorf("%w: invalid option %q", domain.ErrDecode, string(req.Op))
	}
	if req.SenderID == "" {
		return fmt.Errorf("%w: missing senderId", domain.ErrDecode)
	}
	switch req.Op {
	case domain.OpTransfer:
		if req.ReceiverHandle == "" || req.Amount == 0 || req.PIN == "" {
			return fmt.Errorf("%w: missing required fields", domain.ErrDecode)
		}
	case domain.OpBalance:
		if req.PIN == "" {
			return fmt.Errorf("%w: missing pin", domain.ErrDecode)
		}
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawURLEncoding,
		base64.RawStdEncoding,
	}
	var err error
	for _, enc := range encodings {
		var raw []byte
		if raw, err = enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, err
}

// SMSLink builds the sms: deep link a client opens to hand the envelope to
// the relay number. The trailing newline matches what clients have always sent.
func SMSLink(number, token string) string {
	return "sms:" + number + "?body=" + url.QueryEscape(token) + "%0A"
}

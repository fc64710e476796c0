// Package bridge carries the cross-window messages posted by login popups and
// 3-D Secure challenge frames to the checkout or admin session that opened them.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	TypeLogin   Type = "login"
	TypeThreeDS Type = "3DS"
)

var (
	ErrUnknownType = errors.New("unknown bridge message type")
	ErrMalformed   = errors.New("malformed bridge message")
)

// Message is one of LoginMessage or ThreeDSMessage.
type Message interface {
	Type() Type
	isMessage()
}

type LoginMessage struct {
	Successful bool `json:"login_successful"`
}

func (LoginMessage) Type() Type { return TypeLogin }
func (LoginMessage) isMessage() {}

type ThreeDSMessage struct {
	PaymentID string `json:"payment_id"`
	Approved  bool   `json:"threeds_approved"`
}

func (ThreeDSMessage) Type() Type { return TypeThreeDS }
func (ThreeDSMessage) isMessage() {}

// Decode reads a postMessage payload. Anything without a known type
// discriminator yields ErrUnknownType.
func Decode(raw []byte) (Message, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch head.Type {
	case TypeLogin:
		var m LoginMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return m, nil
	case TypeThreeDS:
		var m ThreeDSMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
}

// Encode writes a message in the same shape the popup pages post.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case LoginMessage:
		return json.Marshal(struct {
			Type Type `json:"type"`
			LoginMessage
		}{TypeLogin, msg})
	case ThreeDSMessage:
		return json.Marshal(struct {
			Type Type `json:"type"`
			ThreeDSMessage
		}{TypeThreeDS, msg})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
}

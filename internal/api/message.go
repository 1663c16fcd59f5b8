package api

import (
	"encoding/json"

	"github.com/kkbullenn/trivia-app/internal/errors"
)

// Inbound client→server messages, one variant per message kind. Decoding
// happens once at the boundary; everything past it switches over the closed
// set below.
type Message interface {
	isMessage()
}

type JoinMessage struct {
	SessionID int64
	UserID    int64
	Username  string
}

type NextMessage struct{}

type PrevMessage struct{}

type AnswerMessage struct {
	Answer string
}

func (JoinMessage) isMessage()   {}
func (NextMessage) isMessage()   {}
func (PrevMessage) isMessage()   {}
func (AnswerMessage) isMessage() {}

// DecodeMessage parses a raw frame into its message variant. Malformed JSON
// and unknown tags both come back as invalid-argument; the caller logs and
// drops them without closing the connection.
func DecodeMessage(data []byte) (Message, error) {
	var raw struct {
		Type      string `json:"type"`
		SessionID int64  `json:"sessionId"`
		UserID    int64  `json:"userId"`
		Username  string `json:"username"`
		Answer    string `json:"answer"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed message"),
			errors.WithCause(err),
		)
	}

	switch raw.Type {
	case "join":
		if raw.SessionID == 0 || raw.UserID == 0 {
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("join requires sessionId and userId"))
		}
		return JoinMessage{
			SessionID: raw.SessionID,
			UserID:    raw.UserID,
			Username:  raw.Username,
		}, nil

	case "next":
		return NextMessage{}, nil

	case "prev":
		return PrevMessage{}, nil

	case "answer":
		return AnswerMessage{Answer: raw.Answer}, nil

	default:
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown message type: %q", raw.Type))
	}
}

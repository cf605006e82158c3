// Package protocol defines the message envelope exchanged over persistent
// connections: inbound commands decoded into a closed set of types, and the
// outbound events rooms emit.
package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/cory-johannsen/daguai/internal/game/cards"
	"github.com/cory-johannsen/daguai/internal/game/gameerr"
	"github.com/cory-johannsen/daguai/internal/game/identity"
)

// Inbound message types.
const (
	TypeCheck       = "check"
	TypePlay        = "play"
	TypeSendCard    = "sendCard"
	TypeGetUpdate   = "getUpdate"
	TypeGameMessage = "gameMessage"
	TypePong        = "pong"
)

// gameMessage sub-values.
const (
	MessagePlayAgain = "play again"
	MessageExit      = "exit"
)

// RoomID is a room identifier. Clients send it as a string or a number.
type RoomID string

// UnmarshalJSON accepts a JSON string or number.
func (r *RoomID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RoomID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*r = RoomID(n.String())
	return nil
}

// Envelope is the raw inbound frame.
type Envelope struct {
	Type          string         `json:"type"`
	UID           identity.Token `json:"uid"`
	RoomID        RoomID         `json:"roomId"`
	PlayedHand    []cards.Card   `json:"playedHand,omitempty"`
	SelectedCards []cards.Card   `json:"selectedCards,omitempty"`
	Message       string         `json:"message,omitempty"`
}

// Command is a decoded inbound message. The set of implementations is closed.
type Command interface {
	command()
}

// Check asks whether a play (or, during the tribute phase, a tribute
// selection) would be accepted.
type Check struct{ PlayedHand []cards.Card }

// Play commits a play; an empty hand is a pass.
type Play struct{ PlayedHand []cards.Card }

// SendCard exchanges tribute cards.
type SendCard struct{ SelectedCards []cards.Card }

// GetUpdate requests a fresh projection for the sender.
type GetUpdate struct{}

// PlayAgain deals a new match with the same roster.
type PlayAgain struct{}

// Exit soft-resets the room.
type Exit struct{}

// Pong answers an application-level ping on transports without control frames.
type Pong struct{}

func (Check) command()     {}
func (Play) command()      {}
func (SendCard) command()  {}
func (GetUpdate) command() {}
func (PlayAgain) command() {}
func (Exit) command()      {}
func (Pong) command()      {}

// Decode parses a frame into its envelope and command.
//
// Postcondition: on success the returned Command is non-nil. Malformed JSON and
// unknown types fail with gameerr.KindInvalid; the envelope is returned
// whenever the JSON itself parsed so the caller can still route a reply.
func Decode(data []byte) (Envelope, Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, gameerr.Invalid("malformed message")
	}
	cmd, err := env.Command()
	return env, cmd, err
}

// Command converts the envelope into its typed command.
func (e Envelope) Command() (Command, error) {
	switch e.Type {
	case TypeCheck:
		return Check{PlayedHand: e.PlayedHand}, nil
	case TypePlay:
		return Play{PlayedHand: e.PlayedHand}, nil
	case TypeSendCard:
		return SendCard{SelectedCards: e.SelectedCards}, nil
	case TypeGetUpdate:
		return GetUpdate{}, nil
	case TypePong:
		return Pong{}, nil
	case TypeGameMessage:
		switch e.Message {
		case MessagePlayAgain:
			return PlayAgain{}, nil
		case MessageExit:
			return Exit{}, nil
		}
		return nil, gameerr.Invalid("unknown game message: %s", e.Message)
	}
	return nil, gameerr.Invalid("unknown message type: %s", e.Type)
}

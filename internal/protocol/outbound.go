package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/daguai/internal/game/cards"
	"github.com/cory-johannsen/daguai/internal/game/rules"
)

// Outbound message types.
const (
	TypeUpdate         = "update"
	TypeCheckOK        = "check ok"
	TypeCheckError     = "check error"
	TypeError          = "error"
	TypeGameOver       = "game over"
	TypeReload         = "reload"
	TypeTributeSummary = "tribute summary"
	TypeNewPlayer      = "new player"
	TypePlayerLeft     = "player left"
	TypeNumSpectators  = "num spectators"
	TypePing           = "ping"
)

// Room phases reported in projections.
const (
	PhaseLobby    = "lobby"
	PhaseActive   = "active"
	PhaseFinished = "finished"
)

// Message is any outbound event.
type Message interface {
	MessageType() string
}

// Update is a personalized projection of a room. MyHand is set only when the
// recipient is a seated player.
type Update struct {
	Type            string           `json:"type"`
	Phase           string           `json:"phase"`
	Players         []string         `json:"players"`
	GamePlayers     []rules.Seat     `json:"gamePlayers"`
	CurrentPlayer   int              `json:"currentPlayer"`
	LastPlayCards   []cards.Card     `json:"lastPlayCards"`
	Spectators      int              `json:"spectators"`
	PendingTributes rules.TributeSet `json:"pendingTributes,omitempty"`
	MyHand          []cards.Card     `json:"myHand,omitempty"`
}

// HandUpdate privately delivers a hand changed by someone else's tribute.
type HandUpdate struct {
	Type     string       `json:"type"`
	GameHand []cards.Card `json:"gameHand"`
}

// CheckOK answers a successful check.
type CheckOK struct {
	Type       string `json:"type"`
	IsPassOK   bool   `json:"isPassOk"`
	OnlyPassOK bool   `json:"onlyPassOk"`
}

// CheckError answers a failed check.
type CheckError struct {
	Type     string `json:"type"`
	IsPassOK bool   `json:"isPassOk"`
	Err      string `json:"err"`
}

// Error reports a failure.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Notice is a payload-free signal (game over, reload, ping).
type Notice struct {
	Type string `json:"type"`
}

// TributeSummary lists settled exchanges.
type TributeSummary struct {
	Type     string   `json:"type"`
	Tributes []string `json:"tributes"`
}

// PlayerEvent announces a roster change.
type PlayerEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// NumSpectators announces the spectator count.
type NumSpectators struct {
	Type          string `json:"type"`
	NumSpectators int    `json:"numSpectators"`
}

func (m Update) MessageType() string         { return m.Type }
func (m HandUpdate) MessageType() string     { return m.Type }
func (m CheckOK) MessageType() string        { return m.Type }
func (m CheckError) MessageType() string     { return m.Type }
func (m Error) MessageType() string          { return m.Type }
func (m Notice) MessageType() string         { return m.Type }
func (m TributeSummary) MessageType() string { return m.Type }
func (m PlayerEvent) MessageType() string    { return m.Type }
func (m NumSpectators) MessageType() string  { return m.Type }

// NewHandUpdate builds a HandUpdate.
func NewHandUpdate(hand []cards.Card) HandUpdate {
	return HandUpdate{Type: TypeUpdate, GameHand: cards.Clone(hand)}
}

// NewCheckOK builds a CheckOK.
func NewCheckOK(isPassOK, onlyPassOK bool) CheckOK {
	return CheckOK{Type: TypeCheckOK, IsPassOK: isPassOK, OnlyPassOK: onlyPassOK}
}

// NewCheckError builds a CheckError.
func NewCheckError(isPassOK bool, msg string) CheckError {
	return CheckError{Type: TypeCheckError, IsPassOK: isPassOK, Err: msg}
}

// NewError builds an Error.
func NewError(msg string) Error {
	return Error{Type: TypeError, Message: msg}
}

// GameOver signals a terminal match.
func GameOver() Notice { return Notice{Type: TypeGameOver} }

// Reload tells clients to re-fetch state.
func Reload() Notice { return Notice{Type: TypeReload} }

// Ping is the application-level liveness check.
func Ping() Notice { return Notice{Type: TypePing} }

// NewTributeSummary builds a TributeSummary.
func NewTributeSummary(lines []string) TributeSummary {
	if lines == nil {
		lines = []string{}
	}
	return TributeSummary{Type: TypeTributeSummary, Tributes: lines}
}

// NewPlayer announces a joined player.
func NewPlayer(username string) PlayerEvent {
	return PlayerEvent{Type: TypeNewPlayer, Username: username}
}

// PlayerLeft announces a departed player.
func PlayerLeft(username string) PlayerEvent {
	return PlayerEvent{Type: TypePlayerLeft, Username: username}
}

// NewNumSpectators builds a NumSpectators.
func NewNumSpectators(n int) NumSpectators {
	return NumSpectators{Type: TypeNumSpectators, NumSpectators: n}
}

// Encode marshals msg for the wire.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.MessageType(), err)
	}
	return data, nil
}

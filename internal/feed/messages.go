package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"llm-trading-dashboard/internal/state"
	"llm-trading-dashboard/internal/types"
)

var (
	ErrMalformedMessage = errors.New("malformed stream message")
	ErrUnknownMessage   = errors.New("unknown stream message type")
)

type MessageKind string

const (
	MessageState  MessageKind = "state"
	MessageLogs   MessageKind = "logs"
	MessageTrades MessageKind = "trades"
)

// Message is one decoded push message. Only the fields of its Kind are set.
type Message struct {
	Kind      MessageKind
	Status    types.BotStatus
	Portfolio *types.Portfolio
	Logs      []types.AgentLog
	Trades    []types.Transaction
}

// state messages carry the status fields at the top level; logs and trades carry a data list
type envelope struct {
	Type string `json:"type"`
	types.BotStatus
	Portfolio *types.Portfolio `json:"portfolio,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
}

var jsonNull = []byte("null")

func DecodeMessage(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	msg := Message{Kind: MessageKind(env.Type)}
	switch msg.Kind {
	case MessageState:
		msg.Status = env.BotStatus
		msg.Portfolio = env.Portfolio
	case MessageLogs:
		if err := decodeList(env.Data, &msg.Logs); err != nil {
			return Message{}, err
		}
	case MessageTrades:
		if err := decodeList(env.Data, &msg.Trades); err != nil {
			return Message{}, err
		}
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	return msg, nil
}

func decodeList(raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) || raw[0] != '[' {
		return fmt.Errorf("%w: data must be a list", ErrMalformedMessage)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

// Apply folds the message into the store: state applies in one step, logs
// replace the cache, trades merge into it.
func (m Message) Apply(s *state.Store) bool {
	switch m.Kind {
	case MessageState:
		return s.ApplyState(m.Status, m.Portfolio)
	case MessageLogs:
		return s.ReplaceLogs(m.Logs)
	case MessageTrades:
		return s.MergeTrades(m.Trades)
	}
	return false
}

package control

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"llm-trading-dashboard/internal/interfaces"
	"llm-trading-dashboard/internal/logger"
	"llm-trading-dashboard/internal/tradelog"
	"llm-trading-dashboard/internal/types"
)

var ErrNoSymbols = errors.New("no symbols selected")

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

const (
	MsgAgentStopped  = "Agent Stopped"
	MsgAgentStarted  = "Agent Started & Executing..."
	MsgToggleFailed  = "Failed to toggle bot"
	MsgSellSubmitted = "Sell order submitted for: "
	MsgSellFailed    = "Failed to sell: "
	MsgSellReqFailed = "Sell request failed"
)

const (
	commandToggleBot  = "toggle_bot"
	commandClosePosns = "close_positions"
)

// Notification is a transient message for the operator.
type Notification struct {
	ID      string
	Level   Level
	Message string
	Time    time.Time
}

// Controller issues operator commands straight to the backend. It never
// touches local state; the result shows up with the next snapshot or push.
type Controller struct {
	backend interfaces.Commander
	journal *tradelog.Journal
	now     func() time.Time
}

// New builds a controller. A nil journal disables command journaling.
func New(backend interfaces.Commander, journal *tradelog.Journal) *Controller {
	return &Controller{backend: backend, journal: journal, now: time.Now}
}

// ToggleBot stops an active bot, or starts an inactive one and triggers an
// immediate agent run.
func (c *Controller) ToggleBot(ctx context.Context, active bool) Notification {
	var err error
	if active {
		err = c.backend.StopBot(ctx)
	} else if err = c.backend.StartBot(ctx); err == nil {
		err = c.backend.RunAgent(ctx)
	}

	var n Notification
	switch {
	case err != nil:
		n = c.notify(LevelError, MsgToggleFailed)
	case active:
		n = c.notify(LevelSuccess, MsgAgentStopped)
	default:
		n = c.notify(LevelSuccess, MsgAgentStarted)
	}

	c.record(ctx, tradelog.Entry{
		Command: commandToggleBot,
		Outcome: string(n.Level),
		Message: n.Message,
		Error:   errText(err),
		Extra:   map[string]any{"was_active": active},
	})
	return n
}

// ClosePositions asks the backend to sell every listed symbol. Submitted
// symbols are reported in one success notification and the rest in one error
// notification, so a partial close yields both.
func (c *Controller) ClosePositions(ctx context.Context, symbols []string) ([]Notification, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	resp, err := c.backend.ClosePositions(ctx, symbols)
	if err != nil {
		n := c.notify(LevelError, MsgSellReqFailed)
		c.record(ctx, tradelog.Entry{
			Command: commandClosePosns,
			Outcome: string(LevelError),
			Message: n.Message,
			Symbols: symbols,
			Error:   err.Error(),
		})
		return []Notification{n}, nil
	}

	var ok, failed []string
	for _, r := range resp.Results {
		if r.Status == types.CloseStatusSubmitted {
			ok = append(ok, r.Symbol)
		} else {
			failed = append(failed, r.Symbol)
		}
	}

	var out []Notification
	if len(ok) > 0 {
		out = append(out, c.notify(LevelSuccess, MsgSellSubmitted+strings.Join(ok, ", ")))
	}
	if len(failed) > 0 {
		out = append(out, c.notify(LevelError, MsgSellFailed+strings.Join(failed, ", ")))
	}

	for _, n := range out {
		c.record(ctx, tradelog.Entry{
			Command: commandClosePosns,
			Outcome: string(n.Level),
			Message: n.Message,
			Symbols: symbols,
		})
	}
	return out, nil
}

func (c *Controller) notify(level Level, msg string) Notification {
	return Notification{ID: uuid.NewString(), Level: level, Message: msg, Time: c.now()}
}

func (c *Controller) record(ctx context.Context, e tradelog.Entry) {
	fields := []any{"message", e.Message}
	if len(e.Symbols) > 0 {
		fields = append(fields, "symbols", e.Symbols)
	}
	if e.Error != "" {
		fields = append(fields, "error", e.Error)
	}
	logger.Command(ctx, e.Command, e.Outcome, fields...)

	if c.journal == nil {
		return
	}
	if err := c.journal.Append(e); err != nil {
		logger.ErrorWithErr(ctx, "Failed to journal command", err, "command", e.Command)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Package notify pushes assignment and escalation pings to the investigations
// channel. Notification delivery is best effort and never blocks or fails a
// lifecycle action.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"

	"compliance-case-service/internal/engine"
	"compliance-case-service/internal/logging"
)

// Telegram sends lifecycle pings to a single configured chat.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	logger *logging.Logger
}

// NewTelegram builds the notifier. An empty token disables it.
func NewTelegram(token string, chatID int64, logger *logging.Logger) (*Telegram, error) {
	if token == "" {
		return nil, nil
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID, logger: logger}, nil
}

// Hook returns the dispatcher hook. Only assignment and escalation are worth
// a ping; everything else is visible on the dashboard.
func (t *Telegram) Hook() engine.Hook {
	return func(ev engine.Event) {
		if t == nil || ev.Alert == nil {
			return
		}
		var text string
		switch ev.Result.Action {
		case "alert.assign":
			text = fmt.Sprintf("Alert #%d (%s, %s) assigned", ev.Alert.ID, ev.Alert.Scenario, ev.Alert.Severity)
		case "alert.escalate":
			text = fmt.Sprintf("Alert #%d (%s, %s) escalated", ev.Alert.ID, ev.Alert.Scenario, ev.Alert.Severity)
		default:
			return
		}
		if ev.Result.TaskID != nil {
			text += fmt.Sprintf(", task #%d", *ev.Result.TaskID)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: t.chatID,
			Text:   text,
		})
		if err != nil {
			t.logger.Errorf("telegram notification failed: %v", err)
		}
	}
}

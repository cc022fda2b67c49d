// Package telegram is a reference Observer: it turns alert lifecycle
// events into short Telegram messages, and doubles as the transport
// pkg/logx sends its own Telegram log lines through. A burst of
// simultaneous alert deletions must not get the bot rate-limited by
// Telegram itself, so sends go through a token bucket.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	logx "alertsched/pkg/logx"

	"alertsched/internal/observer"
	"alertsched/internal/taxonomy"
)

var (
	_ observer.Observer = (*Notifier)(nil)
	_ logx.Sender       = (*Notifier)(nil)
)

// Config configures the reference Observer/Sender.
type Config struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration

	// RatePerSec caps outbound messages per second; 0 or less falls back
	// to a conservative default of 1.
	RatePerSec float64
}

// Notifier implements observer.Observer and logx.Sender over a single
// Telegram bot instance.
type Notifier struct {
	cfg Config
	bot *tele.Bot
	log logx.Logger
	lim *rate.Limiter
}

// New starts a Telegram bot for outbound sends only; it never polls for
// updates (this module has no inbound command surface).
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Notifier{
		cfg: cfg,
		bot: bot,
		log: log,
		lim: rate.NewLimiter(rate.Limit(rps), 5),
	}, nil
}

// OnAlertStateChange implements observer.Observer. It is called from the
// scheduler's serial executor thread and must not block for long, so a
// send that would exceed the rate limit is dropped rather than awaited.
func (n *Notifier) OnAlertStateChange(token, typeName string, state taxonomy.EventKind, reason taxonomy.StopReason) {
	if !n.lim.Allow() {
		n.log.Warn("telegram notifier: dropped alert event, rate limited",
			logx.String("token", token), logx.String("state", state.String()))
		return
	}
	text := formatEvent(token, typeName, state, reason)
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	if _, err := n.SendText(ctx, logx.ChatTarget{ChatID: n.cfg.ChatID, ThreadID: n.cfg.ThreadID}, text, nil); err != nil {
		n.log.Error("telegram notifier: send failed", logx.String("token", token), logx.Any("err", err))
	}
}

// SendText implements logx.Sender, letting pkg/logx route its own log
// lines through the same bot instance.
func (n *Notifier) SendText(ctx context.Context, to logx.ChatTarget, text string, opts *logx.SendOptions) (int, error) {
	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{ThreadID: to.ThreadID}
	if opts != nil {
		sendOpt.DisableWebPagePreview = opts.DisablePreview
	}
	msg, err := n.bot.Send(chat, text, sendOpt)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func formatEvent(token, typeName string, state taxonomy.EventKind, reason taxonomy.StopReason) string {
	if reason == taxonomy.StopReasonUnspecified {
		return fmt.Sprintf("[%s] %s -> %s", typeName, token, state)
	}
	return fmt.Sprintf("[%s] %s -> %s (%s)", typeName, token, state, reason)
}

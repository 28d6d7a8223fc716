// Package bot is the Discord surface of the prediction market. It
// listens for prefix commands ("!predict ...") and relays them to the
// engine, with the Discord user ID as the ledger identity.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"predictions/internal/market"
)

type Bot struct {
	session *discordgo.Session
	engine  *market.Service
	prefix  string
	log     *slog.Logger
}

func New(token, prefix string, engine *market.Service, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	b := &Bot{
		session: session,
		engine:  engine,
		prefix:  prefix,
		log:     logger,
	}
	session.AddHandler(b.onMessage)
	return b, nil
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	b.log.Info("bot connected", "prefix", b.prefix)
	<-ctx.Done()
	return b.session.Close()
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, b.prefix) {
		return
	}
	args := splitArgs(strings.TrimSpace(strings.TrimPrefix(content, b.prefix)))
	if len(args) == 0 {
		args = []string{"help"}
	}

	reply := b.dispatch(context.Background(), m.Author.ID, args[0], args[1:])
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.log.Error("send reply", "channel", m.ChannelID, "err", err)
	}
}

func (b *Bot) dispatch(ctx context.Context, userID, cmd string, args []string) string {
	handler, ok := handlers[strings.ToLower(cmd)]
	if !ok {
		return fmt.Sprintf("unknown command %q, try `%s help`", cmd, b.prefix)
	}
	reply, err := handler(b, ctx, userID, args)
	if err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			return fmt.Sprintf("usage: %s %s", b.prefix, usage.text)
		}
		b.log.Warn("command failed", "cmd", cmd, "user", userID, "err", err)
		return "error: " + err.Error()
	}
	return reply
}

type handlerFunc func(b *Bot, ctx context.Context, userID string, args []string) (string, error)

// handlers is the static command table; the message loop never
// reflects over anything.
var handlers = map[string]handlerFunc{
	"help":        (*Bot).cmdHelp,
	"list":        (*Bot).cmdList,
	"show":        (*Bot).cmdShow,
	"create":      (*Bot).cmdCreate,
	"buy":         (*Bot).cmdBuy,
	"sell":        (*Bot).cmdSell,
	"balance":     (*Bot).cmdBalance,
	"leaderboard": (*Bot).cmdLeaderboard,
	"resolve":     (*Bot).cmdResolve,
	"cancel":      (*Bot).cmdCancel,
}

type usageError struct {
	text string
}

func (e usageError) Error() string { return "usage: " + e.text }

// splitArgs splits on whitespace, honoring double quotes so questions
// and multi-word arguments survive ("will it rain?" is one token).
func splitArgs(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// Package bot implements the Telegram admin panel: the main menu, the
// statistics dashboard, the review queue, report handling and admin
// management, all gated by role-based permission checks.
package bot

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	tele "gopkg.in/telebot.v4"

	"github.com/armorybot/armory/internal/metrics"
	"github.com/armorybot/armory/internal/moderation"
	"github.com/armorybot/armory/internal/rbac"
)

var (
	errEmptyUserID = errm.New("empty user id")
)

// Logger is an interface for logging messages.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config contains bot configuration.
type Config struct {
	// Token is the Telegram bot token.
	Token string

	// LPTimeout is the long polling timeout.
	LPTimeout time.Duration

	// Debug enables verbose telebot logging.
	Debug bool

	// SessionCapacity bounds the per-admin session cache.
	SessionCapacity int

	// SessionTTL is how long an idle admin session is kept.
	SessionTTL time.Duration
}

// Broadcaster sends a message to every active bot user.
// Implemented by the notify package; set after construction because the
// broadcaster itself sends through the bot.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (int, error)
}

// Bot is the Telegram admin panel.
type Bot struct {
	bot      *tele.Bot
	log      Logger
	roles    *rbac.Manager
	mod      *moderation.Service
	sessions *sessionStore
	metrics  *metrics.Metrics

	broadcaster Broadcaster

	defaultOptions []any
}

// New creates the bot, registers all handlers and starts polling.
// The bot is stopped through ctx on shutdown.
func New(ctx contem.Context, cfg Config, roles *rbac.Manager, mod *moderation.Service, m *metrics.Metrics, log Logger) (*Bot, error) {
	sessions, err := newSessionStore(cfg.SessionCapacity, cfg.SessionTTL)
	if err != nil {
		return nil, errm.Wrap(err, "session store")
	}

	b := &Bot{
		log:            log,
		roles:          roles,
		mod:            mod,
		sessions:       sessions,
		metrics:        m,
		defaultOptions: []any{tele.ModeHTML},
	}

	cfg.LPTimeout = lang.Check(cfg.LPTimeout, 15*time.Second)

	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  tele.NewMiddlewarePoller(&tele.LongPoller{Timeout: cfg.LPTimeout}, b.filterUpdate),
		Client:  &http.Client{Timeout: 2 * cfg.LPTimeout},
		Verbose: cfg.Debug,
		OnError: func(err error, c tele.Context) {
			var userID int64
			if c != nil && c.Chat() != nil {
				userID = c.Chat().ID
			}
			b.metrics.IncError("handler")
			b.log.Error("Bot.OnError", "error", err, "user_id", userID)
		},
	})
	if err != nil {
		return nil, errm.Wrap(err, "new telebot")
	}
	b.bot = bot

	b.registerHandlers()

	b.log.Info("bot is starting")

	lang.Go(b.log, b.bot.Start)

	ctx.AddFunc(b.bot.Stop)

	return b, nil
}

// SetBroadcaster wires the broadcaster in after construction.
func (b *Bot) SetBroadcaster(bc Broadcaster) {
	b.broadcaster = bc
}

// Send sends a message to the user with the bot's default options.
func (b *Bot) Send(userID int64, msg string, options ...any) error {
	if userID == 0 {
		return errEmptyUserID
	}

	_, err := b.bot.Send(userIDWrapper(userID), msg, append(options, b.defaultOptions...)...)
	return err
}

func (b *Bot) edit(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	err := c.Edit(text, append([]any{markup}, b.defaultOptions...)...)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		b.log.Warn("message is not modified", "user_id", senderID(c))
		return nil
	}
	return err
}

// respond answers the message either by editing the pressed menu (for
// callbacks) or by sending a new message.
func (b *Bot) respond(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if c.Callback() != nil {
		return b.edit(c, text, markup)
	}
	return c.Send(text, append([]any{markup}, b.defaultOptions...)...)
}

// filterUpdate runs before handler dispatch: it counts updates and drops
// updates from chats where the bot was blocked.
func (b *Bot) filterUpdate(upd *tele.Update) bool {
	b.metrics.IncUpdate()

	if upd.MyChatMember != nil {
		if lang.Deref(upd.MyChatMember.NewChatMember).Role == "kicked" {
			b.log.Warn("bot is blocked",
				"user_id", lang.Deref(upd.MyChatMember.Sender).ID,
				"username", lang.Deref(upd.MyChatMember.Sender).Username)
			return false
		}
		if lang.Deref(upd.MyChatMember.OldChatMember).Role == "kicked" {
			b.log.Info("bot is unblocked",
				"user_id", lang.Deref(upd.MyChatMember.Sender).ID,
				"username", lang.Deref(upd.MyChatMember.Sender).Username)
			return false
		}
	}

	return true
}

func senderID(c tele.Context) int64 {
	if sender := c.Sender(); sender != nil {
		return sender.ID
	}
	return 0
}

type userIDWrapper int64

func (u userIDWrapper) Recipient() string {
	return strconv.FormatInt(int64(u), 10)
}

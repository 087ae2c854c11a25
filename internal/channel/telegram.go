package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMsgLen = 4000

// telegramSender is the part of *tgbotapi.BotAPI used to reply.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram answers every text message it receives.
type Telegram struct {
	token     string
	allowFrom []int64 // empty = allow all
	asker     Asker
	bot       telegramSender
	logger    *slog.Logger
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	Asker     Asker
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		} else {
			cfg.Logger.Warn("ignoring invalid telegram user id", "value", s)
		}
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		asker:     cfg.Asker,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start long-polls for updates until ctx is cancelled. Updates are handled one
// at a time.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if !t.isAllowed(msg.From.ID) {
		t.logger.Warn("unauthorized telegram user", "user_id", msg.From.ID, "username", msg.From.UserName)
		t.reply(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			t.reply(chatID, "Send me a question about the Discord archive and I will answer it.")
			return
		case "ask":
			text = strings.TrimSpace(msg.CommandArguments())
		default:
			t.reply(chatID, "Unknown command. Just send your question as a message.")
			return
		}
	}
	if text == "" {
		return
	}

	t.logger.Info("telegram question received", "user_id", msg.From.ID, "chat_id", chatID, "text_len", len(text))
	_, _ = t.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	res, err := t.asker.Answer(ctx, text)
	if err != nil {
		t.logger.Error("telegram ask failed", "chat_id", chatID, "err", err)
		t.reply(chatID, "Sorry, I could not answer that right now.")
		return
	}
	t.reply(chatID, res.Answer)
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// reply sends text as plain messages of at most telegramMaxMsgLen bytes.
func (t *Telegram) reply(chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			t.logger.Error("telegram send failed", "chat_id", chatID, "err", err)
			return
		}
	}
}

package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const discordMaxMsgLen = 2000

// interactionReplier is the part of *discordgo.Session used to answer /ask.
type interactionReplier interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordBot answers /ask slash commands.
type DiscordBot struct {
	token   string
	guildID string
	asker   Asker
	logger  *slog.Logger
}

type DiscordBotConfig struct {
	Token   string
	GuildID string // empty = global commands
	Asker   Asker
	Logger  *slog.Logger
}

func NewDiscordBot(cfg DiscordBotConfig) *DiscordBot {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DiscordBot{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		asker:   cfg.Asker,
		logger:  cfg.Logger,
	}
}

func (d *DiscordBot) Name() string { return "discord" }

var askCommand = &discordgo.ApplicationCommand{
	Name:        "ask",
	Description: "Ask a question about this server's message history",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "question",
			Description: "Your question",
			Required:    true,
		},
	},
}

// Start connects to the gateway, registers /ask and serves it until ctx is
// cancelled.
func (d *DiscordBot) Start(ctx context.Context) error {
	token := d.token
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		d.handleInteraction(ctx, s, i)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	if _, err := session.ApplicationCommandCreate(session.State.User.ID, d.guildID, askCommand); err != nil {
		d.logger.Warn("failed to register slash command", "command", askCommand.Name, "err", err)
	}

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

func (d *DiscordBot) handleInteraction(ctx context.Context, s interactionReplier, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != askCommand.Name {
		return
	}

	var question string
	for _, opt := range data.Options {
		if opt.Name == "question" && opt.Type == discordgo.ApplicationCommandOptionString {
			question = strings.TrimSpace(opt.StringValue())
		}
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		d.logger.Error("discord defer failed", "err", err)
		return
	}

	d.logger.Info("discord question received", "user_id", interactionUser(i), "channel_id", i.ChannelID, "text_len", len(question))

	answer := "Please provide a question."
	if question != "" {
		res, err := d.asker.Answer(ctx, question)
		if err != nil {
			d.logger.Error("discord ask failed", "channel_id", i.ChannelID, "err", err)
			answer = "Sorry, I could not answer that right now."
		} else {
			answer = res.Answer
		}
	}

	chunks := splitMessage(answer, discordMaxMsgLen)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &chunks[0]}); err != nil {
		d.logger.Error("discord response edit failed", "err", err)
		return
	}
	for _, chunk := range chunks[1:] {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: chunk}); err != nil {
			d.logger.Error("discord followup failed", "err", err)
			return
		}
	}
}

func interactionUser(i *discordgo.InteractionCreate) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	}
	return ""
}

// splitMessage splits msg into chunks of at most maxLen bytes, preferring to cut
// after a newline. It always returns at least one chunk.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		} else {
			// Avoid splitting a multi-byte rune.
			for cut > maxLen/2 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

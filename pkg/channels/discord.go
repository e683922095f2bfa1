package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
	"github.com/dotsetgreg/dotrecall/pkg/config"
	"github.com/dotsetgreg/dotrecall/pkg/logger"
)

// DiscordChannel mirrors live Discord conversations into per-thread turn
// logs. It never sends messages; the agent replying is someone else's job.
// Human turns are recorded with the transport envelope the platform layer
// attaches (leading bracketed header, trailing message-id marker), which
// the sync engine's sanitizer strips before storage.
type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig
}

func NewDiscordChannel(cfg config.DiscordConfig, eventBus *bus.EventBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", eventBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord listener")

	c.session.AddHandler(c.handleMessage)
	c.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord listener connected", map[string]interface{}{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord listener")
	c.setRunning(false)
	c.FlushAll()

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}

	// The agent's own replies come back through the same gateway; they
	// are part of the conversation and recorded as agent turns.
	if m.Author.ID == s.State.User.ID {
		content := m.Content
		if content == "" {
			return
		}
		c.RecordTurn(m.ChannelID, bus.Turn{Role: bus.RoleAgent, Content: content})
		return
	}

	if m.Author.Bot {
		// Other bots participate but are never stored.
		c.RecordTurn(m.ChannelID, bus.Turn{Role: bus.RoleOther, Content: m.Content})
		return
	}

	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]interface{}{
			"user_id": m.Author.ID,
		})
		return
	}

	content := m.Content
	if content == "" && len(m.Attachments) > 0 {
		content = "[media only]"
	}
	if content == "" {
		return
	}

	envelope := fmt.Sprintf("[discord %s %s] %s [message_id: %s]",
		m.ChannelID, time.Now().UTC().Format(time.RFC3339), content, m.ID)

	logger.DebugCF("discord", "Recorded human turn", map[string]interface{}{
		"sender_id":  m.Author.ID,
		"channel_id": m.ChannelID,
	})
	c.RecordTurn(m.ChannelID, bus.Turn{Role: bus.RoleHuman, Content: envelope})
}

package bot

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rmolina/gamebind/internal/config"
	bindingSvc "github.com/rmolina/gamebind/pkg/services/binding"
	checkinSvc "github.com/rmolina/gamebind/pkg/services/checkin"
	ledgerSvc "github.com/rmolina/gamebind/pkg/services/ledger"
	redemptionSvc "github.com/rmolina/gamebind/pkg/services/redemption"
)

// Bot is the Discord command surface over the engine. It resolves the
// caller's Discord user id as the identity string, invokes one engine
// operation per command, and renders the typed result or error. No engine
// logic lives here.
type Bot struct {
	config     *config.Config
	session    *discordgo.Session
	commands   []*discordgo.ApplicationCommand
	bindings   *bindingSvc.Service
	ledger     *ledgerSvc.Service
	checkin    *checkinSvc.Service
	redemption *redemptionSvc.Service
	shutdownWg sync.WaitGroup
}

// New creates a new instance of Bot
func New(cfg *config.Config, bindings *bindingSvc.Service, ledger *ledgerSvc.Service, checkin *checkinSvc.Service, redemption *redemptionSvc.Service) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	bot := &Bot{
		config:     cfg,
		session:    session,
		commands:   make([]*discordgo.ApplicationCommand, 0),
		bindings:   bindings,
		ledger:     ledger,
		checkin:    checkin,
		redemption: redemption,
	}

	session.AddHandler(bot.handleInteractionCreate)

	return bot, nil
}

// Start initializes the bot and connects to Discord
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the bot
func (b *Bot) Shutdown() {
	// Cleanup commands if in development
	if b.config.IsDevelopment() {
		b.cleanupCommands()
	}

	if err := b.session.Close(); err != nil {
		fmt.Printf("Error closing Discord session: %v\n", err)
	}

	// Wait for any ongoing operations to complete
	b.shutdownWg.Wait()
}

// handleInteractionCreate handles Discord interaction events
func (b *Bot) handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type == discordgo.InteractionApplicationCommand {
		b.handleSlashCommand(s, i)
	}
}

// callerIdentity resolves the stable identity string for an interaction.
// Guild interactions carry the user under Member; DMs carry it directly.
func callerIdentity(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rmolina/gamebind/internal/logging"
)

// handleSlashCommand dispatches a slash command to its engine operation
func (b *Bot) handleSlashCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	identity := callerIdentity(i)
	if identity == "" {
		b.respond(s, i, "Could not work out who you are. Try again.")
		return
	}

	b.shutdownWg.Add(1)
	defer b.shutdownWg.Done()

	ctx := context.Background()

	switch i.ApplicationCommandData().Name {
	case "bind":
		b.handleBind(ctx, s, i, identity)
	case "rebind":
		b.handleRebind(ctx, s, i, identity)
	case "unbind":
		b.handleUnbind(ctx, s, i, identity)
	case "mybind":
		b.handleMyBind(ctx, s, i, identity)
	case "checkin":
		b.handleCheckin(ctx, s, i, identity)
	case "balance":
		b.handleBalance(ctx, s, i, identity)
	case "transfer":
		b.handleTransfer(ctx, s, i, identity)
	case "redeem":
		b.handleRedeem(ctx, s, i, identity)
	default:
		logging.Default.Warn("Unknown command: %s", i.ApplicationCommandData().Name)
	}
}

func (b *Bot) handleBind(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, identity string) {
	handle := stringOption(i, "handle")

	binding, err := b.bindings.Bind(ctx, identity, handle)
	if err != nil {
		b.respondError(s, i, err)
		return
	}

	b.respond(s, i, fmt.Sprintf("Bound to game account `%s`.", binding.Handle))
}

func (b *Bot) handleRebind(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, identity string) {
	handle := stringOption(i, "handle")

	binding, err := b.bindings.Rebind(ctx, identity, handle)
	if err != nil {
		b.respondError(s, i, err)
		return
	}

	b.respond(s, i, fmt.Sprintf("Rebound from `%s` to `%s`.", binding.PreviousHandle, binding.Handle))
}

func (b *Bot) handleUnbind(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, identity string) {
	if err := b.bindings.Unbind(ctx, identity); err != nil {
		b.respondError(s, i, err)
		return
	}

	b.respond(s, i, "Binding removed.")
}

func (b *Bot) handleMyBind(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, identity string) {
	binding, err := b.bindings.Lookup(ctx, identity)
	if err != nil {
		b.respondError(s, i, err)
		return
	}

	if binding == nil {
		b.respond(s, i, "You have no game account bound. Use /bind to add one.")
		return
	}

	b.respond(s, i, fmt.Sprintf("Bound to `%s` since %s.", binding.Handle, binding.BoundAt.Format("2006-01-02")))
}

func (b *Bot) handleCheckin(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, identity string) {
	result, err := b.checkin.Checkin(ctx, identity, time.Now())
	if err != nil {
		b.respondError(s, i, err)
		return
	}

	b.respond(s, i, fmt.Sprintf("Checked in! +%d points (streak: %d days, balance: %d).",
		result.Reward, result.StreakLength, result.Balance))
}

func (b *Bot) handleBalance(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, identity string) {
	account, err := b.ledger.GetAccount(ctx, identity)
	if err != nil {
		b.respondError(s, i, err)
		return
	}

	if account == nil {
		b.respond(s, i, "Balance: 0 points.")
		return
	}

	b.respond(s, i, fmt.Sprintf("Balance: %d points (earned %d, spent %d).",
		account.Balance, account.TotalEarned, account.TotalSpent))
}

func (b *Bot) handleTransfer(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, identity string) {
	to := userOption(s, i, "to")
	amount := intOption(i, "amount")

	fromAccount, _, err := b.ledger.Transfer(ctx, identity, to, amount, "transfer via bot")
	if err != nil {
		b.respondError(s, i, err)
		return
	}

	b.respond(s, i, fmt.Sprintf("Transferred %d points. Your balance: %d.", amount, fromAccount.Balance))
}

func (b *Bot) handleRedeem(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, identity string) {
	points := intOption(i, "points")
	memo := stringOption(i, "memo")

	receipt, err := b.redemption.Redeem(ctx, identity, points, memo)
	if err != nil {
		b.respondError(s, i, err)
		return
	}

	b.respond(s, i, fmt.Sprintf("Redeemed %d points for %d game currency. Local balance: %d, game balance: %d.",
		receipt.PointsSpent, receipt.CurrencyAmount, receipt.Balance, receipt.GameBalance))
}

// respond sends an ephemeral reply to the interaction
func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logging.Default.Error("Failed to respond to interaction: %v", err)
	}
}

// respondError renders an engine error as a stable user-facing message
func (b *Bot) respondError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	logging.Default.LogError(err)
	b.respond(s, i, renderError(err))
}

// stringOption extracts a string option by name
func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

// intOption extracts an integer option by name
func intOption(i *discordgo.InteractionCreate, name string) int64 {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionInteger {
			return opt.IntValue()
		}
	}
	return 0
}

// userOption extracts a user option's id by name
func userOption(s *discordgo.Session, i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionUser {
			return opt.UserValue(s).ID
		}
	}
	return ""
}

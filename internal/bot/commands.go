package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Commands defines all slash commands for the bot
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "bind",
		Description: "Bind your game account",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "handle",
				Description: "Your game account handle",
				Required:    true,
			},
		},
	},
	{
		Name:        "rebind",
		Description: "Replace your bound game account with a new one",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "handle",
				Description: "The new game account handle",
				Required:    true,
			},
		},
	},
	{
		Name:        "unbind",
		Description: "Remove your game account binding",
	},
	{
		Name:        "mybind",
		Description: "Show your current binding",
	},
	{
		Name:        "checkin",
		Description: "Daily check-in for points",
	},
	{
		Name:        "balance",
		Description: "Show your points balance",
	},
	{
		Name:        "transfer",
		Description: "Transfer points to another user",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "to",
				Description: "Recipient",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "amount",
				Description: "Points to transfer",
				Required:    true,
			},
		},
	},
	{
		Name:        "redeem",
		Description: "Redeem points into game currency",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "points",
				Description: "Points to redeem",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "memo",
				Description: "Optional note",
				Required:    false,
			},
		},
	},
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	for _, cmd := range Commands {
		registered, err := b.session.ApplicationCommandCreate(b.config.AppID, b.config.GuildID, cmd)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		b.commands = append(b.commands, registered)
	}
	return nil
}

// cleanupCommands removes registered commands on shutdown
func (b *Bot) cleanupCommands() {
	for _, cmd := range b.commands {
		if err := b.session.ApplicationCommandDelete(b.config.AppID, b.config.GuildID, cmd.ID); err != nil {
			fmt.Printf("Error deleting command %s: %v\n", cmd.Name, err)
		}
	}
}

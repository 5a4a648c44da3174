package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tomescry/internal/dice"
	"github.com/MrWong99/tomescry/internal/discord"
)

// RollCommand handles the /roll slash command.
type RollCommand struct{}

// NewRollCommand creates a RollCommand handler.
func NewRollCommand() *RollCommand {
	return &RollCommand{}
}

// Register registers /roll with the router.
func (rc *RollCommand) Register(router *discord.CommandRouter) {
	router.RegisterCommand("roll", rc.Definition(), rc.handleRoll)
}

// Definition returns the /roll ApplicationCommand for Discord registration.
func (rc *RollCommand) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "roll",
		Description: "Roll dice using standard notation",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "expr",
				Description: "Dice expression, e.g. 2d6+3 or 1d20",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
			{
				Name:        "seed",
				Description: "Seed for a reproducible roll",
				Type:        discordgo.ApplicationCommandOptionInteger,
			},
		},
	}
}

// handleRoll handles /roll <expr> [seed].
func (rc *RollCommand) handleRoll(s discord.Responder, i *discordgo.InteractionCreate) {
	expr := stringOption(i, "expr")

	var (
		result *dice.Result
		err    error
	)
	if seed, ok := intOption(i, "seed"); ok {
		result, err = dice.RollSeeded(expr, uint64(seed))
	} else {
		result, err = dice.Roll(expr)
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondText(s, i, "🎲 "+result.String())
}

package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tomescry/internal/discord"
)

const (
	// askTimeout bounds one driver turn, including upstream fetches.
	askTimeout = 120 * time.Second

	// maxAnswerLen is the Discord message content limit.
	maxAnswerLen = 2000
)

// Asker runs one question through the conversation driver and returns
// the final answer.
type Asker interface {
	Run(ctx context.Context, query string) (string, error)
}

// LoreCommand handles the /lore slash command group.
type LoreCommand struct {
	// mu serializes driver turns; concurrent questions queue here.
	mu    sync.Mutex
	asker Asker
}

// NewLoreCommand creates a LoreCommand handler.
func NewLoreCommand(asker Asker) *LoreCommand {
	return &LoreCommand{asker: asker}
}

// Register registers all /lore subcommands with the router.
func (lc *LoreCommand) Register(router *discord.CommandRouter) {
	def := lc.Definition()
	router.RegisterCommand("lore", def, func(s discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/lore ask`.")
	})
	router.RegisterHandler("lore/ask", lc.handleAsk)
}

// Definition returns the /lore ApplicationCommand for Discord registration.
func (lc *LoreCommand) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "lore",
		Description: "Ask the rules and lore assistant",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "ask",
				Description: "Ask a question about monsters, spells, or rules",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "question",
						Description: "Your question",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
					},
				},
			},
		},
	}
}

// handleAsk handles /lore ask <question>. Driver turns can take many
// seconds (model calls plus reference fetches), so the reply is deferred
// and the answer arrives as a follow-up.
func (lc *LoreCommand) handleAsk(s discord.Responder, i *discordgo.InteractionCreate) {
	question := strings.TrimSpace(subcommandStringOption(i, "question"))
	if question == "" {
		discord.RespondEphemeral(s, i, "Please provide a question.")
		return
	}

	discord.DeferReply(s, i)

	lc.mu.Lock()
	defer lc.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
	defer cancel()

	answer, err := lc.asker.Run(ctx, question)
	if err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Sorry, I could not answer that: %v", err))
		return
	}

	discord.FollowUp(s, i, truncate(answer, maxAnswerLen))
}

// truncate shortens text to at most limit runes, ending with an ellipsis
// when anything was cut.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}

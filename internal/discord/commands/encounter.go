package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tomescry/internal/discord"
	"github.com/MrWong99/tomescry/internal/encounter"
	"github.com/MrWong99/tomescry/internal/encounter/statestore"
)

// opTimeout bounds one tracker operation against the state store.
const opTimeout = 10 * time.Second

// EncounterCommands handles the /encounter slash command group.
type EncounterCommands struct {
	perms   *discord.PermissionChecker
	tracker *encounter.Tracker
}

// NewEncounterCommands creates an EncounterCommands handler.
func NewEncounterCommands(perms *discord.PermissionChecker, tracker *encounter.Tracker) *EncounterCommands {
	return &EncounterCommands{
		perms:   perms,
		tracker: tracker,
	}
}

// Register registers all /encounter subcommands with the router.
func (ec *EncounterCommands) Register(router *discord.CommandRouter) {
	def := ec.Definition()
	router.RegisterCommand("encounter", def, func(s discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/encounter add`, `/encounter damage`, `/encounter heal`, `/encounter temphp`, `/encounter condition`, `/encounter uncondition`, `/encounter show`, `/encounter reset`.")
	})
	router.RegisterHandler("encounter/add", ec.handleAdd)
	router.RegisterHandler("encounter/damage", ec.handleDamage)
	router.RegisterHandler("encounter/heal", ec.handleHeal)
	router.RegisterHandler("encounter/temphp", ec.handleTempHP)
	router.RegisterHandler("encounter/condition", ec.handleCondition)
	router.RegisterHandler("encounter/uncondition", ec.handleUncondition)
	router.RegisterHandler("encounter/show", ec.handleShow)
	router.RegisterHandler("encounter/reset", ec.handleReset)

	router.RegisterAutocomplete("encounter/damage", ec.handleAutocomplete)
	router.RegisterAutocomplete("encounter/heal", ec.handleAutocomplete)
	router.RegisterAutocomplete("encounter/temphp", ec.handleAutocomplete)
	router.RegisterAutocomplete("encounter/condition", ec.handleAutocomplete)
	router.RegisterAutocomplete("encounter/uncondition", ec.handleAutocomplete)
}

// Definition returns the /encounter ApplicationCommand for Discord registration.
func (ec *EncounterCommands) Definition() *discordgo.ApplicationCommand {
	idOption := func() *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Name:         "id",
			Description:  "Actor ID",
			Type:         discordgo.ApplicationCommandOptionString,
			Required:     true,
			Autocomplete: true,
		}
	}
	amountOption := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Name:        "amount",
			Description: desc,
			Type:        discordgo.ApplicationCommandOptionInteger,
			Required:    true,
		}
	}

	return &discordgo.ApplicationCommand{
		Name:        "encounter",
		Description: "Track hit points and conditions during combat",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "add",
				Description: "Add an actor or update its name, max HP, or AC",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "id",
						Description: "Actor ID, e.g. goblin-1",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
					},
					{
						Name:        "name",
						Description: "Display name",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
					},
					{
						Name:        "max_hp",
						Description: "Maximum hit points",
						Type:        discordgo.ApplicationCommandOptionInteger,
						Required:    true,
					},
					{
						Name:        "ac",
						Description: "Armor class",
						Type:        discordgo.ApplicationCommandOptionInteger,
					},
				},
			},
			{
				Name:        "damage",
				Description: "Apply damage to an actor",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					idOption(),
					amountOption("Damage amount"),
					{
						Name:        "type",
						Description: "Damage type, e.g. fire",
						Type:        discordgo.ApplicationCommandOptionString,
					},
				},
			},
			{
				Name:        "heal",
				Description: "Heal an actor",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					idOption(),
					amountOption("Healing amount"),
					{
						Name:        "overheal",
						Description: "Allow healing beyond max HP",
						Type:        discordgo.ApplicationCommandOptionBoolean,
					},
				},
			},
			{
				Name:        "temphp",
				Description: "Grant temporary hit points (the higher value wins)",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					idOption(),
					amountOption("Temporary hit points"),
				},
			},
			{
				Name:        "condition",
				Description: "Add a condition to an actor",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					idOption(),
					{
						Name:        "condition",
						Description: "Condition name, e.g. poisoned",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
					},
				},
			},
			{
				Name:        "uncondition",
				Description: "Remove a condition from an actor",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					idOption(),
					{
						Name:        "condition",
						Description: "Condition name, e.g. poisoned",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
					},
				},
			},
			{
				Name:        "show",
				Description: "Show all actors in the encounter",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "reset",
				Description: "Clear the encounter (GM only)",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
		},
	}
}

// handleAdd handles /encounter add <id> <name> <max_hp> [ac].
func (ec *EncounterCommands) handleAdd(s discord.Responder, i *discordgo.InteractionCreate) {
	id := subcommandStringOption(i, "id")
	name := subcommandStringOption(i, "name")
	maxHP, _ := subcommandIntOption(i, "max_hp")

	var opts []encounter.ActorOption
	if ac, ok := subcommandIntOption(i, "ac"); ok {
		opts = append(opts, encounter.WithArmorClass(int(ac)))
	}

	ctx, cancel := opCtx()
	defer cancel()

	actor, err := ec.tracker.UpsertActor(ctx, id, name, int(maxHP), opts...)
	if err != nil {
		respondTrackerError(s, i, err)
		return
	}

	discord.RespondText(s, i, fmt.Sprintf("**%s** (`%s`) is in the encounter with %d/%d HP.", actor.Name, actor.ID, actor.HP, actor.MaxHP))
}

// handleDamage handles /encounter damage <id> <amount> [type].
func (ec *EncounterCommands) handleDamage(s discord.Responder, i *discordgo.InteractionCreate) {
	id := subcommandStringOption(i, "id")
	amount, _ := subcommandIntOption(i, "amount")
	damageType := subcommandStringOption(i, "type")

	ctx, cancel := opCtx()
	defer cancel()

	report, err := ec.tracker.ApplyDamage(ctx, id, int(amount), damageType)
	if err != nil {
		respondTrackerError(s, i, err)
		return
	}

	discord.RespondText(s, i, formatDamage(report))
}

// handleHeal handles /encounter heal <id> <amount> [overheal].
func (ec *EncounterCommands) handleHeal(s discord.Responder, i *discordgo.InteractionCreate) {
	id := subcommandStringOption(i, "id")
	amount, _ := subcommandIntOption(i, "amount")
	overheal := subcommandBoolOption(i, "overheal")

	ctx, cancel := opCtx()
	defer cancel()

	report, err := ec.tracker.Heal(ctx, id, int(amount), overheal)
	if err != nil {
		respondTrackerError(s, i, err)
		return
	}

	discord.RespondText(s, i, formatHeal(report))
}

// handleTempHP handles /encounter temphp <id> <amount>.
func (ec *EncounterCommands) handleTempHP(s discord.Responder, i *discordgo.InteractionCreate) {
	id := subcommandStringOption(i, "id")
	amount, _ := subcommandIntOption(i, "amount")

	ctx, cancel := opCtx()
	defer cancel()

	actor, err := ec.tracker.GrantTempHP(ctx, id, int(amount))
	if err != nil {
		respondTrackerError(s, i, err)
		return
	}

	discord.RespondText(s, i, fmt.Sprintf("**%s** has %d temporary HP.", actor.Name, actor.TempHP))
}

// handleCondition handles /encounter condition <id> <condition>.
func (ec *EncounterCommands) handleCondition(s discord.Responder, i *discordgo.InteractionCreate) {
	id := subcommandStringOption(i, "id")
	condition := subcommandStringOption(i, "condition")

	ctx, cancel := opCtx()
	defer cancel()

	actor, err := ec.tracker.AddCondition(ctx, id, condition)
	if err != nil {
		respondTrackerError(s, i, err)
		return
	}

	discord.RespondText(s, i, fmt.Sprintf("**%s** is now %s.", actor.Name, strings.ToLower(strings.TrimSpace(condition))))
}

// handleUncondition handles /encounter uncondition <id> <condition>.
func (ec *EncounterCommands) handleUncondition(s discord.Responder, i *discordgo.InteractionCreate) {
	id := subcommandStringOption(i, "id")
	condition := subcommandStringOption(i, "condition")

	ctx, cancel := opCtx()
	defer cancel()

	actor, err := ec.tracker.RemoveCondition(ctx, id, condition)
	if err != nil {
		respondTrackerError(s, i, err)
		return
	}

	discord.RespondText(s, i, fmt.Sprintf("**%s** is no longer %s.", actor.Name, strings.ToLower(strings.TrimSpace(condition))))
}

// handleShow handles /encounter show.
func (ec *EncounterCommands) handleShow(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := opCtx()
	defer cancel()

	actors, err := ec.tracker.Actors(ctx)
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}
	if len(actors) == 0 {
		discord.RespondEphemeral(s, i, "The encounter is empty. Use `/encounter add` first.")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Encounter",
		Description: strings.Join(formatActorLines(actors), "\n"),
		Color:       0x5865F2,
	}
	discord.RespondEmbed(s, i, embed)
}

// handleReset handles /encounter reset.
func (ec *EncounterCommands) handleReset(s discord.Responder, i *discordgo.InteractionCreate) {
	if !ec.perms.IsGM(i) {
		discord.RespondEphemeral(s, i, "You need the GM role to reset the encounter.")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()

	if err := ec.tracker.Reset(ctx); err != nil {
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondText(s, i, "Encounter cleared.")
}

// handleAutocomplete provides autocomplete for the "id" option across the
// /encounter subcommands that target an existing actor.
func (ec *EncounterCommands) handleAutocomplete(s discord.Responder, i *discordgo.InteractionCreate) {
	// Find the focused option's partial value.
	partial := ""
	for _, opt := range subcommandOptions(i) {
		if opt.Focused {
			partial = strings.ToLower(opt.StringValue())
			break
		}
	}

	ctx, cancel := opCtx()
	defer cancel()

	actors, err := ec.tracker.Actors(ctx)
	if err != nil {
		actors = nil
	}

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, a := range actors {
		if partial == "" || strings.HasPrefix(strings.ToLower(a.ID), partial) || strings.HasPrefix(strings.ToLower(a.Name), partial) {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  fmt.Sprintf("%s (%d/%d HP)", a.Name, a.HP, a.MaxHP),
				Value: a.ID,
			})
		}
		// Discord limits autocomplete to 25 choices.
		if len(choices) >= 25 {
			break
		}
	}

	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
}

// opCtx returns a context bounding one tracker operation.
func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// respondTrackerError renders tracker failures, with a friendlier message
// for unknown actors.
func respondTrackerError(s discord.Responder, i *discordgo.InteractionCreate, err error) {
	var notFound *encounter.ActorNotFoundError
	if errors.As(err, &notFound) {
		discord.RespondEphemeral(s, i, fmt.Sprintf("No actor with ID `%s`. Use `/encounter show` to list the encounter.", notFound.ID))
		return
	}
	discord.RespondError(s, i, err)
}

// formatDamage renders a damage report as a channel message.
func formatDamage(r *encounter.DamageReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** takes %d", r.Name, r.Damage)
	// The tracker labels untyped damage "generic"; omit that in chat.
	if r.DamageType != "" && r.DamageType != "generic" {
		fmt.Fprintf(&b, " %s", r.DamageType)
	}
	fmt.Fprintf(&b, " damage: %s → %s.", formatHP(r.Before), formatHP(r.After))
	if r.After.HP == 0 {
		b.WriteString(" 💀")
	}
	return b.String()
}

// formatHeal renders a heal report as a channel message.
func formatHeal(r *encounter.HealReport) string {
	return fmt.Sprintf("**%s** heals %d: %d → %d HP (max %d).", r.Name, r.Heal, r.BeforeHP, r.AfterHP, r.MaxHP)
}

// formatHP renders one HP snapshot, including temporary HP when present.
func formatHP(s encounter.HPSnapshot) string {
	if s.TempHP > 0 {
		return fmt.Sprintf("%d HP (+%d temp)", s.HP, s.TempHP)
	}
	return fmt.Sprintf("%d HP", s.HP)
}

// formatActorLines renders one line per actor for the /encounter show embed.
func formatActorLines(actors []*statestore.Actor) []string {
	var lines []string
	for _, a := range actors {
		icon := "❤️"
		if a.HP == 0 {
			icon = "💀"
		}
		line := fmt.Sprintf("%s **%s** (`%s`): %d/%d HP", icon, a.Name, a.ID, a.HP, a.MaxHP)
		if a.TempHP > 0 {
			line += fmt.Sprintf(" +%d temp", a.TempHP)
		}
		if a.ArmorClass != nil {
			line += fmt.Sprintf(", AC %d", *a.ArmorClass)
		}
		if len(a.Conditions) > 0 {
			line += " (" + strings.Join(a.Conditions, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

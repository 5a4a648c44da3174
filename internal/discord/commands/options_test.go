package commands

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

// topInteraction builds a top-level command interaction for handler tests.
func topInteraction(cmd string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    cmd,
				Options: opts,
			},
		},
	}
}

// subInteraction builds a subcommand interaction for handler tests.
func subInteraction(cmd, sub string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: cmd,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name:    sub,
						Type:    discordgo.ApplicationCommandOptionSubCommand,
						Options: opts,
					},
				},
			},
		},
	}
}

func strOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

// intOpt builds an integer option. Discord delivers integers as JSON
// numbers, so the value is stored as float64.
func intOpt(name string, value int64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionInteger,
		Value: float64(value),
	}
}

func boolOpt(name string, value bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionBoolean,
		Value: value,
	}
}

func focusedOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	opt := strOpt(name, value)
	opt.Focused = true
	return opt
}

func TestStringOption(t *testing.T) {
	t.Parallel()

	inter := topInteraction("roll", strOpt("expr", "2d6+3"))
	if got := stringOption(inter, "expr"); got != "2d6+3" {
		t.Errorf("stringOption() = %q, want %q", got, "2d6+3")
	}
	if got := stringOption(inter, "missing"); got != "" {
		t.Errorf("stringOption(missing) = %q, want empty", got)
	}
}

func TestIntOption(t *testing.T) {
	t.Parallel()

	inter := topInteraction("roll", strOpt("expr", "1d20"), intOpt("seed", 42))

	got, ok := intOption(inter, "seed")
	if !ok {
		t.Fatal("expected seed option to be present")
	}
	if got != 42 {
		t.Errorf("intOption() = %d, want 42", got)
	}

	if _, ok := intOption(inter, "missing"); ok {
		t.Error("expected missing option to report absent")
	}
}

func TestSubcommandStringOption(t *testing.T) {
	t.Parallel()

	inter := subInteraction("encounter", "damage",
		strOpt("id", "goblin-1"),
		intOpt("amount", 4),
	)

	if got := subcommandStringOption(inter, "id"); got != "goblin-1" {
		t.Errorf("subcommandStringOption() = %q, want %q", got, "goblin-1")
	}
	if got := subcommandStringOption(inter, "missing"); got != "" {
		t.Errorf("subcommandStringOption(missing) = %q, want empty", got)
	}
}

func TestSubcommandStringOption_NoSubcommand(t *testing.T) {
	t.Parallel()

	inter := topInteraction("roll", strOpt("expr", "1d20"))
	if got := subcommandStringOption(inter, "expr"); got != "" {
		t.Errorf("expected empty value for non-subcommand interaction, got %q", got)
	}
}

func TestSubcommandIntOption(t *testing.T) {
	t.Parallel()

	inter := subInteraction("encounter", "damage",
		strOpt("id", "goblin-1"),
		intOpt("amount", 4),
	)

	got, ok := subcommandIntOption(inter, "amount")
	if !ok {
		t.Fatal("expected amount option to be present")
	}
	if got != 4 {
		t.Errorf("subcommandIntOption() = %d, want 4", got)
	}

	if _, ok := subcommandIntOption(inter, "missing"); ok {
		t.Error("expected missing option to report absent")
	}
}

func TestSubcommandBoolOption(t *testing.T) {
	t.Parallel()

	inter := subInteraction("encounter", "heal",
		strOpt("id", "goblin-1"),
		intOpt("amount", 4),
		boolOpt("overheal", true),
	)

	if !subcommandBoolOption(inter, "overheal") {
		t.Error("expected overheal to be true")
	}
	if subcommandBoolOption(inter, "missing") {
		t.Error("expected missing option to read as false")
	}
}

// Package commands implements the Tomescry slash commands: /lore for
// questions answered by the conversation driver, /roll for dice, and
// /encounter for combat bookkeeping.
package commands

import "github.com/bwmarrin/discordgo"

// stringOption extracts a top-level string option value from an interaction.
func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

// intOption extracts a top-level integer option value. The second return
// reports whether the option was provided.
func intOption(i *discordgo.InteractionCreate, name string) (int64, bool) {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.IntValue(), true
		}
	}
	return 0, false
}

// subcommandOptions returns the option list of the invoked subcommand.
func subcommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	data := i.ApplicationCommandData()
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Options
	}
	return nil
}

// subcommandStringOption extracts a string option value from a subcommand interaction.
func subcommandStringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range subcommandOptions(i) {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

// subcommandIntOption extracts an integer option value from a subcommand
// interaction. The second return reports whether the option was provided.
func subcommandIntOption(i *discordgo.InteractionCreate, name string) (int64, bool) {
	for _, opt := range subcommandOptions(i) {
		if opt.Name == name {
			return opt.IntValue(), true
		}
	}
	return 0, false
}

// subcommandBoolOption extracts a boolean option value from a subcommand
// interaction. Missing options read as false.
func subcommandBoolOption(i *discordgo.InteractionCreate, name string) bool {
	for _, opt := range subcommandOptions(i) {
		if opt.Name == name {
			return opt.BoolValue()
		}
	}
	return false
}

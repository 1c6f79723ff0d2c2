package alvlbot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Guild roles managed by the bot. Registration swaps members between
// these; the Client role additionally gates the review command.
const (
	RoleUnregistered = "Não Cadastrado"
	RoleRegistered   = "Cadastrado"
	RoleClient       = "Cliente"
)

// Role colors (Discord integer color values).
const (
	roleColorLightGrey = 0x979C9F
	roleColorGold      = 0xF1C40F
)

// Log/ticket/vouch categories and channels. All are provisioned lazily
// on first use.
const (
	registrationLogCategory = "Logs Cadastro"
	memberJoinLogChannel    = "logs-entrada"
	registeredLogChannel    = "logs-nao-sou-cliente"
	clientLogChannel        = "logs-sou-cliente"

	ticketCategory      = "Orçamentos"
	ticketLogChannel    = "logs-tickets"
	ticketChannelPrefix = "orcamento-"

	vouchCategory        = "AVALIAÇÕES / VOUCHES"
	vouchApprovalChannel = "aprovar-avaliacao"
	vouchPublicChannel   = "avaliacoes-vouches"
)

// getOrCreateRole looks up a role by name in the configured guild,
// creating it with the given params on a miss. No caching: the guild's
// current role list is re-queried on every call, so the live namespace
// stays authoritative.
func (d *Discord) getOrCreateRole(
	name string,
	params *discordgo.RoleParams,
) (*discordgo.Role, error) {
	roles, err := d.session.GuildRoles(d.config.GuildID)
	if err != nil {
		return nil, fmt.Errorf("error listing guild roles: %w", err)
	}
	for _, role := range roles {
		if role.Name == name {
			return role, nil
		}
	}

	if params == nil {
		params = &discordgo.RoleParams{}
	}
	params.Name = name
	role, err := d.session.GuildRoleCreate(d.config.GuildID, params)
	if err != nil {
		return nil, fmt.Errorf("error creating role %q: %w", name, err)
	}
	d.logger.Info("created role", "role", name, "role_id", role.ID)
	return role, nil
}

// getOrCreateCategory looks up a category channel by name, creating it
// hidden from @everyone on a miss.
func (d *Discord) getOrCreateCategory(name string) (*discordgo.Channel, error) {
	channels, err := d.session.GuildChannels(d.config.GuildID)
	if err != nil {
		return nil, fmt.Errorf("error listing guild channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == name {
			return ch, nil
		}
	}

	category, err := d.session.GuildChannelCreateComplex(
		d.config.GuildID,
		discordgo.GuildChannelCreateData{
			Name: name,
			Type: discordgo.ChannelTypeGuildCategory,
			PermissionOverwrites: []*discordgo.PermissionOverwrite{
				{
					ID:   d.config.GuildID,
					Type: discordgo.PermissionOverwriteTypeRole,
					Deny: discordgo.PermissionViewChannel,
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error creating category %q: %w", name, err)
	}
	d.logger.Info("created category", "category", name, "channel_id", category.ID)
	return category, nil
}

// getOrCreateChannel looks up a text channel by name under the named
// category, creating both as needed. Overwrites apply only on channel
// creation; an existing channel's permissions are left alone.
func (d *Discord) getOrCreateChannel(
	categoryName string,
	channelName string,
	overwrites []*discordgo.PermissionOverwrite,
) (*discordgo.Channel, error) {
	category, err := d.getOrCreateCategory(categoryName)
	if err != nil {
		return nil, err
	}

	channels, err := d.session.GuildChannels(d.config.GuildID)
	if err != nil {
		return nil, fmt.Errorf("error listing guild channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText &&
			ch.ParentID == category.ID &&
			ch.Name == channelName {
			return ch, nil
		}
	}

	channel, err := d.session.GuildChannelCreateComplex(
		d.config.GuildID,
		discordgo.GuildChannelCreateData{
			Name:                 channelName,
			Type:                 discordgo.ChannelTypeGuildText,
			ParentID:             category.ID,
			PermissionOverwrites: overwrites,
		},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"error creating channel %q in %q: %w",
			channelName,
			categoryName,
			err,
		)
	}
	d.logger.Info(
		"created channel",
		"channel", channelName,
		"category", categoryName,
		"channel_id", channel.ID,
	)
	return channel, nil
}

// getOrCreateLogChannel provisions a staff-only log channel under the
// registration log category.
func (d *Discord) getOrCreateLogChannel(name string) (*discordgo.Channel, error) {
	return d.getOrCreateChannel(registrationLogCategory, name, nil)
}

// getOrCreateVouchChannel provisions a channel under the vouch category.
// The public vouch channel is read-only for @everyone.
func (d *Discord) getOrCreateVouchChannel(name string) (*discordgo.Channel, error) {
	var overwrites []*discordgo.PermissionOverwrite
	if name == vouchPublicChannel {
		overwrites = []*discordgo.PermissionOverwrite{
			{
				ID:   d.config.GuildID,
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionSendMessages,
			},
		}
	}
	return d.getOrCreateChannel(vouchCategory, name, overwrites)
}

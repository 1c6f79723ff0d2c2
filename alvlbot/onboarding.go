package alvlbot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Registration panel component and modal custom IDs. These are stable
// across restarts so previously posted panels keep working.
const (
	customIDRegistrationNewUser = "reg_new_user"
	customIDRegistrationClient  = "reg_existing_client"

	modalIDRegistrationNewUser = "reg_new_user_modal"
	modalIDRegistrationClient  = "reg_existing_client_modal"

	inputIDRegistrationSource = "source_info"
	inputIDClientProject      = "project_info"

	registrationSourceMaxLength = 100
	clientProjectMaxLength      = 500
)

// handlerGuildMemberAdd assigns the unregistered role to a freshly joined
// member, records them, and posts a join log embed. Failures are logged
// and abandoned; a member the bot couldn't process can still register
// through the panel later.
func (b *AlvlBot) handlerGuildMemberAdd() func(
	s *discordgo.Session,
	m *discordgo.GuildMemberAdd,
) {
	return func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.User == nil || m.User.Bot {
			return
		}
		logger := b.logger.With(
			loggerNameKey, "onboarding",
			"user_id", m.User.ID,
			"username", m.User.Username,
		)
		ctx := WithLogger(context.Background(), logger)

		role, err := b.discord.getOrCreateRole(
			RoleUnregistered,
			&discordgo.RoleParams{},
		)
		if err != nil {
			logger.Error("error provisioning unregistered role", tint.Err(err))
			return
		}
		if err = b.discord.session.GuildMemberRoleAdd(
			m.GuildID,
			m.User.ID,
			role.ID,
		); err != nil {
			logger.Error("error assigning unregistered role", tint.Err(err))
			return
		}

		if err = b.store.AddUnregistered(
			m.User.ID,
			UnregisteredRecord{
				Username: m.User.Username,
				JoinedAt: time.Now().UTC(),
			},
		); err != nil {
			logger.Error("error recording unregistered member", tint.Err(err))
			return
		}

		b.postMemberJoinLog(ctx, m)
		logger.Info("member onboarded")
	}
}

func (b *AlvlBot) postMemberJoinLog(
	ctx context.Context,
	m *discordgo.GuildMemberAdd,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	logChannel, err := b.discord.getOrCreateLogChannel(memberJoinLogChannel)
	if err != nil {
		logger.Error("error provisioning join log channel", tint.Err(err))
		return
	}

	createdAt, _ := discordgo.SnowflakeTimestamp(m.User.ID)
	embed := &discordgo.MessageEmbed{
		Title:       "📥 Novo Membro Entrou",
		Description: fmt.Sprintf("%s se juntou ao servidor.", m.User.Mention()),
		Color:       embedColorBlue,
		Timestamp:   time.Now().Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    fmt.Sprintf("%s (%s)", m.User.Username, m.User.ID),
			IconURL: m.User.AvatarURL(""),
		},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Data da Conta",
				Value:  fmt.Sprintf("<t:%d:R>", createdAt.Unix()),
				Inline: true,
			},
		},
	}

	if guild, guildErr := b.discord.session.Guild(m.GuildID); guildErr != nil {
		logger.Warn("error fetching guild for member count", tint.Err(guildErr))
	} else if guild != nil {
		count := guild.MemberCount
		if count == 0 {
			count = guild.ApproximateMemberCount
		}
		if count > 0 {
			embed.Footer = &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("Total de membros: %d", count),
			}
		}
	}

	if _, err = b.discord.session.ChannelMessageSendComplex(
		logChannel.ID,
		&discordgo.MessageSend{Embed: embed},
	); err != nil {
		logger.Error("error posting join log", tint.Err(err))
	}
}

// commandRegistrationPanel posts the persistent welcome/registration panel
// in the channel the command was invoked from.
func (b *AlvlBot) commandRegistrationPanel(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	guildName := "nosso servidor"
	if guild, err := b.discord.session.Guild(i.GuildID); err == nil {
		guildName = guild.Name
	} else {
		logger.Warn("error fetching guild", tint.Err(err))
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("👋 Bem-vindo(a) ao %s!", guildName),
		Description: "Para ter acesso completo aos nossos canais, " +
			"por favor, identifique-se abaixo.",
		Color: embedColorBlurple,
	}
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Não sou Cliente",
					Style:    discordgo.SecondaryButton,
					CustomID: customIDRegistrationNewUser,
				},
				discordgo.Button{
					Label:    "Já sou Cliente",
					Style:    discordgo.PrimaryButton,
					CustomID: customIDRegistrationClient,
				},
			},
		},
	}

	if _, err := b.discord.session.ChannelMessageSendComplex(
		i.ChannelID,
		&discordgo.MessageSend{Embed: embed, Components: components},
	); err != nil {
		logger.Error("error posting registration panel", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	b.respondEphemeral(ctx, i, "✅ Painel de cadastro criado com sucesso!")
}

// componentRegistrationNewUser handles the "Não sou Cliente" panel button:
// short-circuits if the user already registered, otherwise opens the
// registration questionnaire modal.
func (b *AlvlBot) componentRegistrationNewUser(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	_ string,
) {
	u := getDiscordUser(i)
	if u == nil {
		return
	}
	if b.store.HasRegistered(u.ID) {
		b.respondEphemeral(ctx, i, "Você já concluiu seu cadastro.")
		return
	}

	b.respondModal(
		ctx,
		i,
		modalIDRegistrationNewUser,
		"Questionário de Cadastro",
		[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputIDRegistrationSource,
						Label:       "Onde ouviu falar da Alvl Lab?",
						Style:       discordgo.TextInputShort,
						Placeholder: "Ex: YouTube, um amigo, outro servidor...",
						Required:    true,
						MaxLength:   registrationSourceMaxLength,
					},
				},
			},
		},
	)
}

// componentRegistrationClient handles the "Já sou Cliente" panel button.
func (b *AlvlBot) componentRegistrationClient(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	_ string,
) {
	u := getDiscordUser(i)
	if u == nil {
		return
	}
	if b.store.HasClient(u.ID) {
		b.respondEphemeral(ctx, i, "Você já possui o status de Cliente.")
		return
	}

	b.respondModal(
		ctx,
		i,
		modalIDRegistrationClient,
		"Verificação de Cliente",
		[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputIDClientProject,
						Label:       "Escreva aqui o projeto que fez comigo",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "Ex: Bot de moderação para o servidor X...",
						Required:    true,
						MaxLength:   clientProjectMaxLength,
					},
				},
			},
		},
	)
}

// modalRegistrationNewUser finishes hobbyist registration: swaps the
// unregistered role for the registered role, moves the record, and logs.
func (b *AlvlBot) modalRegistrationNewUser(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ModalSubmitInteractionData,
	_ string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	u := getDiscordUser(i)
	if u == nil {
		return
	}
	if b.store.HasRegistered(u.ID) {
		b.respondEphemeral(ctx, i, "Você já concluiu seu cadastro.")
		return
	}

	source := truncate(
		modalInputValue(data, inputIDRegistrationSource),
		registrationSourceMaxLength,
	)

	registeredRole, err := b.discord.getOrCreateRole(
		RoleRegistered,
		&discordgo.RoleParams{Color: roleColorPtr(roleColorLightGrey)},
	)
	if err != nil {
		logger.Error("error provisioning registered role", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	unregisteredRole, err := b.discord.getOrCreateRole(
		RoleUnregistered,
		&discordgo.RoleParams{},
	)
	if err != nil {
		logger.Error("error provisioning unregistered role", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	if err = b.discord.session.GuildMemberRoleAdd(
		i.GuildID,
		u.ID,
		registeredRole.ID,
	); err != nil {
		logger.Error("error assigning registered role", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	if err = b.discord.session.GuildMemberRoleRemove(
		i.GuildID,
		u.ID,
		unregisteredRole.ID,
	); err != nil {
		logger.Warn("error removing unregistered role", tint.Err(err))
	}

	if err = b.store.Register(
		u.ID,
		RegisteredRecord{
			Username:     u.Username,
			Source:       source,
			RegisteredAt: time.Now().UTC(),
		},
	); err != nil {
		logger.Error("error recording registration", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	b.postRegistrationLog(
		ctx,
		registeredLogChannel,
		&discordgo.MessageEmbed{
			Title:     "📝 Novo Cadastro",
			Color:     embedColorGreen,
			Timestamp: time.Now().Format(time.RFC3339),
			Author: &discordgo.MessageEmbedAuthor{
				Name:    fmt.Sprintf("%s (%s)", u.Username, u.ID),
				IconURL: u.AvatarURL(""),
			},
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Como nos conheceu?", Value: source},
			},
		},
	)

	logger.Info("member registered", "user_id", u.ID)
	b.respondEphemeral(ctx, i, "🎉 Bem-vindo(a)! Seu cadastro foi concluído.")
}

// modalRegistrationClient finishes the client upgrade: the user ends up
// holding only the client role, and appears only in the clients table.
func (b *AlvlBot) modalRegistrationClient(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ModalSubmitInteractionData,
	_ string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	u := getDiscordUser(i)
	if u == nil {
		return
	}
	if b.store.HasClient(u.ID) {
		b.respondEphemeral(ctx, i, "Você já possui o status de Cliente.")
		return
	}

	projectInfo := truncate(
		modalInputValue(data, inputIDClientProject),
		clientProjectMaxLength,
	)

	clientRole, err := b.discord.getOrCreateRole(
		RoleClient,
		&discordgo.RoleParams{Color: roleColorPtr(roleColorGold)},
	)
	if err != nil {
		logger.Error("error provisioning client role", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	if err = b.discord.session.GuildMemberRoleAdd(
		i.GuildID,
		u.ID,
		clientRole.ID,
	); err != nil {
		logger.Error("error assigning client role", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	for _, name := range []string{RoleRegistered, RoleUnregistered} {
		role, roleErr := b.discord.getOrCreateRole(
			name,
			&discordgo.RoleParams{},
		)
		if roleErr != nil {
			logger.Warn(
				"error provisioning role for removal",
				"role", name,
				tint.Err(roleErr),
			)
			continue
		}
		if roleErr = b.discord.session.GuildMemberRoleRemove(
			i.GuildID,
			u.ID,
			role.ID,
		); roleErr != nil {
			logger.Warn(
				"error removing role",
				"role", name,
				tint.Err(roleErr),
			)
		}
	}

	if err = b.store.PromoteClient(
		u.ID,
		ClientRecord{
			Username:     u.Username,
			ProjectInfo:  projectInfo,
			RegisteredAt: time.Now().UTC(),
		},
	); err != nil {
		logger.Error("error recording client", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	b.postRegistrationLog(
		ctx,
		clientLogChannel,
		&discordgo.MessageEmbed{
			Title:     "⭐ Novo Cliente Verificado",
			Color:     embedColorGold,
			Timestamp: time.Now().Format(time.RFC3339),
			Author: &discordgo.MessageEmbedAuthor{
				Name:    fmt.Sprintf("%s (%s)", u.Username, u.ID),
				IconURL: u.AvatarURL(""),
			},
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Projeto Informado", Value: projectInfo},
			},
		},
	)

	logger.Info("client verified", "user_id", u.ID)
	b.respondEphemeral(
		ctx,
		i,
		"✅ Upgrade concluído! Seu acesso como **Cliente** foi liberado.",
	)
}

func (b *AlvlBot) postRegistrationLog(
	ctx context.Context,
	channelName string,
	embed *discordgo.MessageEmbed,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	logChannel, err := b.discord.getOrCreateLogChannel(channelName)
	if err != nil {
		logger.Error(
			"error provisioning log channel",
			"channel", channelName,
			tint.Err(err),
		)
		return
	}
	if _, err = b.discord.session.ChannelMessageSendComplex(
		logChannel.ID,
		&discordgo.MessageSend{Embed: embed},
	); err != nil {
		logger.Error(
			"error posting log embed",
			"channel", channelName,
			tint.Err(err),
		)
	}
}

func roleColorPtr(c int) *int {
	return &c
}

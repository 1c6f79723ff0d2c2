package alvlbot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// Ticket panel component and modal custom IDs.
const (
	customIDBriefingStart      = "briefing_start"
	customIDTicketClose        = "ticket_close"
	customIDTicketAddMember    = "ticket_add_member"
	customIDTicketRemoveMember = "ticket_remove_member"
	customIDTicketCloseConfirm = "confirm_close_ticket"
	customIDTicketCloseCancel  = "cancel_close_ticket"

	modalIDBriefing           = "briefing_modal"
	modalIDTicketAddMember    = "ticket_add_member_modal"
	modalIDTicketRemoveMember = "ticket_remove_member_modal"

	inputIDBriefingProjectType = "project_type"
	inputIDBriefingDescription = "description"
	inputIDBriefingFeatures    = "features"
	inputIDBriefingBudget      = "budget"
	inputIDBriefingDeadline    = "deadline"
	inputIDTicketMember        = "member_input"

	briefingShortMaxLength     = 100
	briefingParagraphMaxLength = 1000

	// ticketCloseConfirmTTL is how long a close confirmation stays
	// actionable. After it elapses the confirm button does nothing
	// beyond telling the user to start over.
	ticketCloseConfirmTTL = 60 * time.Second
)

const ticketChannelNotice = "❌ Este comando só pode ser usado em canais de ticket!"

// Ticket is a persisted briefing intake. The row, not the channel name,
// is the source of truth for the one-open-ticket-per-user rule, so a
// member renaming themselves (or two members sharing a name slug) can't
// confuse ticket identity. A ticket is open while ClosedAt is zero.
type Ticket struct {
	ModelUintID
	ModelUnixTime
	UserID      string `json:"user_id" gorm:"index;not null"`
	Username    string `json:"username" gorm:"type:string"`
	ChannelID   string `json:"channel_id" gorm:"index;not null"`
	ChannelName string `json:"channel_name" gorm:"type:string"`
	ProjectType string `json:"project_type" gorm:"type:string"`
	Description string `json:"description" gorm:"type:string"`
	Features    string `json:"features" gorm:"type:string"`
	Budget      string `json:"budget" gorm:"type:string"`
	Deadline    string `json:"deadline" gorm:"type:string"`
	ClosedAt    int64  `json:"closed_at"`
	ClosedBy    string `json:"closed_by" gorm:"type:string"`
}

// openTicketForUser returns the user's open ticket, or nil.
func (b *AlvlBot) openTicketForUser(userID string) (*Ticket, error) {
	var ticket Ticket
	err := b.db.DB().Where(
		"user_id = ? AND closed_at = 0",
		userID,
	).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

// ticketChannelLive reports whether the ticket's channel still exists in
// the guild. Lookup failures report true so a transient API error can't
// close out a live ticket.
func (b *AlvlBot) ticketChannelLive(channelID string) bool {
	channels, err := b.discord.session.GuildChannels(b.config.Discord.GuildID)
	if err != nil {
		b.logger.Warn("error listing guild channels", tint.Err(err))
		return true
	}
	for _, channel := range channels {
		if channel.ID == channelID {
			return true
		}
	}
	return false
}

// openTicketForChannel returns the open ticket owning the given channel,
// or nil. This is the guard for the ticket action panel: its buttons only
// operate inside live ticket channels.
func (b *AlvlBot) openTicketForChannel(channelID string) (*Ticket, error) {
	var ticket Ticket
	err := b.db.DB().Where(
		"channel_id = ? AND closed_at = 0",
		channelID,
	).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

// commandForms posts the persistent briefing panel in the channel the
// command was invoked from.
func (b *AlvlBot) commandForms(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	embed := &discordgo.MessageEmbed{
		Title: "🏢 Central de Orçamentos Profissionais",
		Description: "**Transforme sua ideia em realidade!**\n\n" +
			"💡 Desenvolvemos soluções personalizadas para suas necessidades\n" +
			"🚀 Clique no botão abaixo para iniciar seu projeto\n" +
			"📋 Um formulário detalhado será apresentado\n" +
			"🎯 Receba um orçamento personalizado rapidamente\n\n" +
			"**⭐ Nossos serviços incluem:**\n" +
			"• Bots para Discord\n" +
			"• Websites e aplicações web\n" +
			"• Sistemas personalizados\n" +
			"• Automações e integrações",
		Color: embedColorDark,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "🔒 Ao solicitar um orçamento, um canal privado será " +
				"criado exclusivamente para você.",
		},
	}
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "📝 Solicitar Orçamento",
					Style:    discordgo.SuccessButton,
					CustomID: customIDBriefingStart,
					Emoji:    &discordgo.ComponentEmoji{Name: "🚀"},
				},
			},
		},
	}

	if _, err := b.discord.session.ChannelMessageSendComplex(
		i.ChannelID,
		&discordgo.MessageSend{Embed: embed, Components: components},
	); err != nil {
		logger.Error("error posting briefing panel", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	b.respondEphemeral(ctx, i, "✅ Painel de formulários criado com sucesso!")
}

// commandPersistentViews confirms panel handlers are attached. Component
// handlers are registered structurally at startup and keyed by custom ID,
// so previously posted panels keep working across restarts without any
// per-message re-registration.
func (b *AlvlBot) commandPersistentViews(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	b.respondEphemeral(ctx, i, "✅ Views persistentes adicionadas com sucesso!")
}

// componentBriefingStart opens the five-field briefing modal.
func (b *AlvlBot) componentBriefingStart(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	_ string,
) {
	b.respondModal(
		ctx,
		i,
		modalIDBriefing,
		"Formulário de Orçamento",
		[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputIDBriefingProjectType,
						Label:       "Qual o tipo de projeto?",
						Style:       discordgo.TextInputShort,
						Placeholder: "Ex: Bot para Discord, Website, Sistema...",
						Required:    true,
						MaxLength:   briefingShortMaxLength,
					},
				},
			},
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID: inputIDBriefingDescription,
						Label:    "Descreva seu projeto em detalhes",
						Style:    discordgo.TextInputParagraph,
						Placeholder: "Explique a ideia central, o objetivo " +
							"e como deve funcionar.",
						Required:  true,
						MaxLength: briefingParagraphMaxLength,
					},
				},
			},
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID: inputIDBriefingFeatures,
						Label:    "Quais são as funcionalidades essenciais?",
						Style:    discordgo.TextInputParagraph,
						Placeholder: "Liste as funções essenciais. " +
							"Ex: 1. Tickets, 2. Auto-role...",
						Required:  true,
						MaxLength: briefingParagraphMaxLength,
					},
				},
			},
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputIDBriefingBudget,
						Label:       "Orçamento (Opcional)",
						Style:       discordgo.TextInputShort,
						Placeholder: "Você tem uma faixa de orçamento em mente?",
						Required:    false,
						MaxLength:   briefingShortMaxLength,
					},
				},
			},
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputIDBriefingDeadline,
						Label:       "Prazo Desejado (Opcional)",
						Style:       discordgo.TextInputShort,
						Placeholder: "Existe um prazo final para a entrega?",
						Required:    false,
						MaxLength:   briefingShortMaxLength,
					},
				},
			},
		},
	)
}

// ticketActionComponents returns the persistent action panel posted inside
// every ticket channel.
func ticketActionComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Fechar Ticket",
					Style:    discordgo.DangerButton,
					CustomID: customIDTicketClose,
					Emoji:    &discordgo.ComponentEmoji{Name: "🔒"},
				},
				discordgo.Button{
					Label:    "Adicionar Membro",
					Style:    discordgo.PrimaryButton,
					CustomID: customIDTicketAddMember,
					Emoji:    &discordgo.ComponentEmoji{Name: "➕"},
				},
				discordgo.Button{
					Label:    "Remover Membro",
					Style:    discordgo.SecondaryButton,
					CustomID: customIDTicketRemoveMember,
					Emoji:    &discordgo.ComponentEmoji{Name: "➖"},
				},
			},
		},
	}
}

// modalBriefing handles a submitted briefing form: enforces the one-open-
// ticket rule, provisions the private ticket channel, persists the ticket,
// and posts the structured submission with the action panel.
func (b *AlvlBot) modalBriefing(
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

	if !b.deferEphemeral(ctx, i) {
		return
	}

	existing, err := b.openTicketForUser(u.ID)
	if err != nil {
		logger.Error("error checking for open ticket", tint.Err(err))
		b.editResponse(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	if existing != nil {
		if b.ticketChannelLive(existing.ChannelID) {
			b.editResponse(
				ctx,
				i,
				fmt.Sprintf(
					"❌ Você já possui um ticket aberto: <#%s>",
					existing.ChannelID,
				),
			)
			return
		}
		// Channel was deleted out-of-band. Close the stale row so it
		// stops blocking the user.
		logger.Warn(
			"open ticket channel no longer exists, closing stale ticket",
			"ticket_id", existing.ID,
			"channel_id", existing.ChannelID,
		)
		if _, err = b.db.Updates(
			ctx,
			&Ticket{ModelUintID: existing.ModelUintID},
			map[string]any{
				"closed_at": time.Now().UnixMilli(),
				"closed_by": u.ID,
			},
		); err != nil {
			logger.Error("error closing stale ticket", tint.Err(err))
			b.editResponse(ctx, i, DefaultDiscordErrorMessage)
			return
		}
	}

	ticket := &Ticket{
		UserID:      u.ID,
		Username:    u.Username,
		ChannelName: ticketChannelPrefix + channelSlug(u.Username),
		ProjectType: truncate(
			modalInputValue(data, inputIDBriefingProjectType),
			briefingShortMaxLength,
		),
		Description: truncate(
			modalInputValue(data, inputIDBriefingDescription),
			briefingParagraphMaxLength,
		),
		Features: truncate(
			modalInputValue(data, inputIDBriefingFeatures),
			briefingParagraphMaxLength,
		),
		Budget: truncate(
			modalInputValue(data, inputIDBriefingBudget),
			briefingShortMaxLength,
		),
		Deadline: truncate(
			modalInputValue(data, inputIDBriefingDeadline),
			briefingShortMaxLength,
		),
	}

	channel, err := b.createTicketChannel(ticket, u)
	if err != nil {
		logger.Error("error creating ticket channel", tint.Err(err))
		b.editResponse(
			ctx,
			i,
			"❌ **Erro ao criar o ticket.** Por favor, tente novamente "+
				"ou contate um administrador.",
		)
		return
	}
	ticket.ChannelID = channel.ID
	ticket.ChannelName = channel.Name

	if _, err = b.db.Create(ctx, ticket); err != nil {
		logger.Error("error persisting ticket", tint.Err(err))
		if _, delErr := b.discord.session.ChannelDelete(channel.ID); delErr != nil {
			logger.Error(
				"error deleting orphaned ticket channel",
				tint.Err(delErr),
			)
		}
		b.editResponse(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	b.postTicketIntro(ctx, ticket, u)

	logger.Info(
		"ticket opened",
		"user_id", u.ID,
		"channel_id", channel.ID,
		"channel", channel.Name,
	)
	b.editResponse(
		ctx,
		i,
		fmt.Sprintf(
			"✅ **Ticket criado com sucesso!**\n"+
				"📍 Acesse seu canal: <#%s>\n"+
				"🔔 Nossa equipe foi notificada automaticamente.",
			channel.ID,
		),
	)
}

// createTicketChannel provisions the private per-requester channel under
// the ticket category, visible only to the requester and the bot.
func (b *AlvlBot) createTicketChannel(
	ticket *Ticket,
	u *discordgo.User,
) (*discordgo.Channel, error) {
	category, err := b.discord.getOrCreateCategory(ticketCategory)
	if err != nil {
		return nil, err
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   b.config.Discord.GuildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:   u.ID,
			Type: discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel |
				discordgo.PermissionSendMessages |
				discordgo.PermissionReadMessageHistory |
				discordgo.PermissionAttachFiles,
		},
	}
	if botUserID := b.discord.botUserID.Load(); botUserID != nil {
		overwrites = append(
			overwrites, &discordgo.PermissionOverwrite{
				ID:   *botUserID,
				Type: discordgo.PermissionOverwriteTypeMember,
				Allow: discordgo.PermissionViewChannel |
					discordgo.PermissionSendMessages |
					discordgo.PermissionReadMessageHistory |
					discordgo.PermissionManageMessages,
			},
		)
	}

	return b.discord.session.GuildChannelCreateComplex(
		b.config.Discord.GuildID,
		discordgo.GuildChannelCreateData{
			Name:                 ticket.ChannelName,
			Type:                 discordgo.ChannelTypeGuildText,
			ParentID:             category.ID,
			PermissionOverwrites: overwrites,
		},
	)
}

// postTicketIntro posts the welcome embed, the structured submission, and
// the persistent action panel into a freshly created ticket channel, and
// mentions the configured owner.
func (b *AlvlBot) postTicketIntro(
	ctx context.Context,
	ticket *Ticket,
	u *discordgo.User,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	welcome := &discordgo.MessageEmbed{
		Title: "🎉 Bem-vindo ao seu ticket de orçamento!",
		Description: fmt.Sprintf(
			"Olá %s! Seu pedido foi recebido com sucesso.\n\n"+
				"**📌 Próximos passos:**\n"+
				"• Nossa equipe analisará seu projeto\n"+
				"• Entraremos em contato em breve\n"+
				"• Use os botões abaixo para gerenciar o ticket\n\n"+
				"**⚠️ Importante:** Mantenha este canal para futuras "+
				"comunicações.",
			u.Mention(),
		),
		Color: embedColorBlue,
	}

	submission := &discordgo.MessageEmbed{
		Title: "📝 Novo Pedido de Orçamento",
		Description: fmt.Sprintf(
			"**Solicitante:** %s\n**Canal:** <#%s>",
			u.Mention(),
			ticket.ChannelID,
		),
		Color:     embedColorDarkTeal,
		Timestamp: time.Now().Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    u.Username,
			IconURL: u.AvatarURL(""),
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("ID do Usuário: %s", u.ID),
		},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "🎯 Tipo de Projeto",
				Value: fmt.Sprintf("```%s```", ticket.ProjectType),
			},
			{
				Name:  "📋 Descrição Detalhada",
				Value: fmt.Sprintf("```%s```", ticket.Description),
			},
			{
				Name:  "⚙️ Funcionalidades Essenciais",
				Value: fmt.Sprintf("```%s```", ticket.Features),
			},
		},
	}
	if ticket.Budget != "" {
		submission.Fields = append(
			submission.Fields, &discordgo.MessageEmbedField{
				Name:   "💰 Orçamento",
				Value:  fmt.Sprintf("```%s```", ticket.Budget),
				Inline: true,
			},
		)
	}
	if ticket.Deadline != "" {
		submission.Fields = append(
			submission.Fields, &discordgo.MessageEmbedField{
				Name:   "⏰ Prazo",
				Value:  fmt.Sprintf("```%s```", ticket.Deadline),
				Inline: true,
			},
		)
	}

	var content string
	if b.config.Discord.OwnerUserID != "" {
		content = fmt.Sprintf(
			"🔔 <@%s>, novo pedido de orçamento!",
			b.config.Discord.OwnerUserID,
		)
	}

	if _, err := b.discord.session.ChannelMessageSendComplex(
		ticket.ChannelID,
		&discordgo.MessageSend{
			Content:    content,
			Embeds:     []*discordgo.MessageEmbed{welcome, submission},
			Components: ticketActionComponents(),
		},
	); err != nil {
		logger.Error("error posting ticket intro", tint.Err(err))
	}
}

// componentTicketClose starts the close flow: a transient confirmation
// whose confirm button carries its issue time, enforcing the expiry
// without any server-side pending state.
func (b *AlvlBot) componentTicketClose(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	_ string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	ticket, err := b.openTicketForChannel(i.ChannelID)
	if err != nil {
		logger.Error("error looking up ticket", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	if ticket == nil {
		b.respondEphemeral(ctx, i, ticketChannelNotice)
		return
	}

	issued := strconv.FormatInt(time.Now().Unix(), 10)
	b.respondEphemeralComponents(
		ctx,
		i,
		"🚨 **Você tem certeza que deseja fechar este ticket?**\n\n"+
			"✅ Uma transcrição completa será salva nos logs\n"+
			"❌ O canal será **permanentemente deletado**\n"+
			"⏰ Esta confirmação expira em 60 segundos",
		[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Confirmar Fechamento",
						Style:    discordgo.DangerButton,
						CustomID: customID(customIDTicketCloseConfirm, issued),
					},
					discordgo.Button{
						Label:    "Cancelar",
						Style:    discordgo.SecondaryButton,
						CustomID: customIDTicketCloseCancel,
					},
				},
			},
		},
	)
}

// componentTicketCloseConfirm executes a confirmed close: transcript
// first, then channel deletion. An expired confirmation does nothing.
func (b *AlvlBot) componentTicketCloseConfirm(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	arg string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	issued, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || time.Since(time.Unix(issued, 0)) > ticketCloseConfirmTTL {
		b.respondEphemeral(
			ctx,
			i,
			"⏰ Esta confirmação expirou. Clique em **Fechar Ticket** novamente.",
		)
		return
	}

	ticket, err := b.openTicketForChannel(i.ChannelID)
	if err != nil {
		logger.Error("error looking up ticket", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	if ticket == nil {
		b.respondEphemeral(ctx, i, ticketChannelNotice)
		return
	}

	u := getDiscordUser(i)
	if u == nil {
		return
	}

	b.respondEphemeral(ctx, i, "Fechando o ticket e gerando a transcrição...")
	b.closeTicket(ctx, ticket, u)
}

func (b *AlvlBot) componentTicketCloseCancel(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	_ string,
) {
	b.respondEphemeral(ctx, i, "Ação cancelada.")
}

// closeTicket posts a transcript to the staff log channel and deletes the
// ticket channel. Transcript failures are logged and fall back to the
// plain-text serializer; nothing blocks the deletion.
func (b *AlvlBot) closeTicket(
	ctx context.Context,
	ticket *Ticket,
	closedBy *discordgo.User,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	logger = logger.With(
		"channel_id", ticket.ChannelID,
		"channel", ticket.ChannelName,
	)

	logChannel, err := b.discord.getOrCreateChannel(
		ticketCategory,
		ticketLogChannel,
		nil,
	)
	if err != nil {
		logger.Error("error provisioning ticket log channel", tint.Err(err))
	} else {
		b.ticketLogChannelID.Store(&logChannel.ID)
		b.postTranscript(ctx, ticket, closedBy, logChannel.ID)
	}

	now := time.Now()
	if _, err = b.db.Updates(
		ctx,
		&Ticket{ModelUintID: ticket.ModelUintID},
		map[string]any{
			"closed_at": now.UnixMilli(),
			"closed_by": closedBy.ID,
		},
	); err != nil {
		logger.Error("error marking ticket closed", tint.Err(err))
	}

	if _, err = b.discord.session.ChannelDelete(ticket.ChannelID); err != nil {
		logger.Error("error deleting ticket channel", tint.Err(err))
		return
	}
	logger.Info("ticket closed", "closed_by", closedBy.ID)
}

// postTranscript renders and posts the transcript: the external exporter
// when configured, the plain-text fallback otherwise or on any failure.
func (b *AlvlBot) postTranscript(
	ctx context.Context,
	ticket *Ticket,
	closedBy *discordgo.User,
	logChannelID string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	messages, err := fetchAllMessages(b.discord.session, ticket.ChannelID)
	if err != nil {
		logger.Error("error fetching ticket history", tint.Err(err))
		messages = nil
	}

	var transcript *Transcript
	if b.transcript.Enabled() {
		transcript, err = b.transcript.Export(
			ctx,
			ticket.ChannelID,
			ticket.ChannelName,
			messages,
		)
		if err != nil {
			logger.Warn(
				"transcript export failed, using fallback",
				tint.Err(err),
			)
			transcript = nil
		}
	}
	if transcript == nil {
		transcript = fallbackTranscript(
			ticket.ChannelName,
			closedBy.Username,
			time.Now(),
			messages,
		)
	}

	if _, err = b.discord.session.ChannelMessageSendComplex(
		logChannelID,
		&discordgo.MessageSend{
			Content: fmt.Sprintf(
				"📋 Transcrição do ticket fechado `%s` por %s:",
				ticket.ChannelName,
				closedBy.Mention(),
			),
			Files: []*discordgo.File{
				{
					Name:        transcript.Filename,
					ContentType: transcript.ContentType,
					Reader:      bytes.NewReader(transcript.Body),
				},
			},
		},
	); err != nil {
		logger.Error("error posting transcript", tint.Err(err))
	}
}

// componentTicketAddMember opens the add-member modal after verifying the
// button was pressed inside a live ticket channel.
func (b *AlvlBot) componentTicketAddMember(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	_ string,
) {
	if !b.requireTicketChannel(ctx, i) {
		return
	}
	b.respondModal(
		ctx,
		i,
		modalIDTicketAddMember,
		"Adicionar Membro ao Ticket",
		memberInputComponents(),
	)
}

func (b *AlvlBot) componentTicketRemoveMember(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	_ string,
) {
	if !b.requireTicketChannel(ctx, i) {
		return
	}
	b.respondModal(
		ctx,
		i,
		modalIDTicketRemoveMember,
		"Remover Membro do Ticket",
		memberInputComponents(),
	)
}

func memberInputComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    inputIDTicketMember,
					Label:       "ID ou @menção do usuário",
					Style:       discordgo.TextInputShort,
					Placeholder: "Ex: 1234567890 ou @usuario",
					Required:    true,
					MaxLength:   briefingShortMaxLength,
				},
			},
		},
	}
}

func (b *AlvlBot) requireTicketChannel(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) bool {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	ticket, err := b.openTicketForChannel(i.ChannelID)
	if err != nil {
		logger.Error("error looking up ticket", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return false
	}
	if ticket == nil {
		b.respondEphemeral(ctx, i, ticketChannelNotice)
		return false
	}
	return true
}

// modalTicketAddMember grants a member visibility into the ticket channel.
// Malformed IDs surface a specific, private error.
func (b *AlvlBot) modalTicketAddMember(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ModalSubmitInteractionData,
	_ string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	memberID, err := parseMemberID(modalInputValue(data, inputIDTicketMember))
	if err != nil {
		b.respondEphemeral(
			ctx,
			i,
			"❌ ID inválido! Use o ID numérico ou @menção.",
		)
		return
	}

	member, err := b.discord.session.GuildMember(i.GuildID, memberID)
	if err != nil || member == nil || member.User == nil {
		b.respondEphemeral(ctx, i, "❌ Usuário não encontrado no servidor!")
		return
	}

	if err = b.discord.session.ChannelPermissionSet(
		i.ChannelID,
		memberID,
		discordgo.PermissionOverwriteTypeMember,
		discordgo.PermissionViewChannel|
			discordgo.PermissionSendMessages|
			discordgo.PermissionReadMessageHistory,
		0,
	); err != nil {
		logger.Error("error adding member to ticket", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	invoker := getDiscordUser(i)
	b.respondEmbed(
		ctx, i, &discordgo.MessageEmbed{
			Title: "✅ Membro Adicionado",
			Description: fmt.Sprintf(
				"%s foi adicionado ao ticket por %s",
				member.User.Mention(),
				invoker.Mention(),
			),
			Color:     embedColorGreen,
			Timestamp: time.Now().Format(time.RFC3339),
		},
	)
}

// modalTicketRemoveMember revokes a member's visibility into the ticket
// channel by dropping their permission overwrite.
func (b *AlvlBot) modalTicketRemoveMember(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ModalSubmitInteractionData,
	_ string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	memberID, err := parseMemberID(modalInputValue(data, inputIDTicketMember))
	if err != nil {
		b.respondEphemeral(
			ctx,
			i,
			"❌ ID inválido! Use o ID numérico ou @menção.",
		)
		return
	}

	member, err := b.discord.session.GuildMember(i.GuildID, memberID)
	if err != nil || member == nil || member.User == nil {
		b.respondEphemeral(ctx, i, "❌ Usuário não encontrado no servidor!")
		return
	}

	if err = b.discord.session.ChannelPermissionDelete(
		i.ChannelID,
		memberID,
	); err != nil {
		logger.Error("error removing member from ticket", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	invoker := getDiscordUser(i)
	b.respondEmbed(
		ctx, i, &discordgo.MessageEmbed{
			Title: "✅ Membro Removido",
			Description: fmt.Sprintf(
				"%s foi removido do ticket por %s",
				member.User.Mention(),
				invoker.Mention(),
			),
			Color:     embedColorRed,
			Timestamp: time.Now().Format(time.RFC3339),
		},
	)
}

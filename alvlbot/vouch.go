package alvlbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Vouch component and modal custom IDs.
const (
	customIDVouchStars   = "vouch_stars"
	customIDVouchApprove = "vouch_approve"
	customIDVouchReject  = "vouch_reject"

	modalIDVouchComment = "vouch_modal"
	inputIDVouchComment = "comment"

	vouchCommentMaxLength = 1024

	// vouchStarSelectTTL is how long the ephemeral star selector stays
	// actionable after /avaliar.
	vouchStarSelectTTL = 180 * time.Second

	vouchMinStars = 1
	// The star selector fills a single action row, one button per star.
	vouchMaxStars = discordMaxButtonsPerActionRow
)

// commandVouch starts the review flow. Only members holding the client
// role may review; everyone else gets a private rejection.
func (b *AlvlBot) commandVouch(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	if i.Member == nil {
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	roles, err := b.discord.session.GuildRoles(i.GuildID)
	if err != nil {
		logger.Error("error listing guild roles", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	var clientRoleID string
	for _, role := range roles {
		if role.Name == RoleClient {
			clientRoleID = role.ID
			break
		}
	}
	holdsClientRole := false
	if clientRoleID != "" {
		for _, roleID := range i.Member.Roles {
			if roleID == clientRoleID {
				holdsClientRole = true
				break
			}
		}
	}
	if !holdsClientRole {
		b.respondEphemeral(
			ctx,
			i,
			fmt.Sprintf(
				"❌ Apenas membros com o cargo **%s** podem deixar uma avaliação.",
				RoleClient,
			),
		)
		return
	}

	issued := strconv.FormatInt(time.Now().Unix(), 10)
	buttons := make([]discordgo.MessageComponent, 0, vouchMaxStars)
	for stars := vouchMinStars; stars <= vouchMaxStars; stars++ {
		buttons = append(
			buttons, discordgo.Button{
				Label: starGlyphs(stars),
				Style: discordgo.SecondaryButton,
				CustomID: customID(
					customIDVouchStars,
					fmt.Sprintf("%d:%s", stars, issued),
				),
			},
		)
	}

	b.respondEphemeralComponents(
		ctx,
		i,
		"Como você avalia o serviço prestado?",
		[]discordgo.MessageComponent{
			discordgo.ActionsRow{Components: buttons},
		},
	)
}

// componentVouchStars handles a star selection. The custom ID carries the
// star count and the selector's issue time; a stale selector does nothing
// beyond telling the user to start over.
func (b *AlvlBot) componentVouchStars(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	arg string,
) {
	starsRaw, issuedRaw, _ := strings.Cut(arg, ":")
	stars, err := strconv.Atoi(starsRaw)
	if err != nil || stars < vouchMinStars || stars > vouchMaxStars {
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	issued, err := strconv.ParseInt(issuedRaw, 10, 64)
	if err != nil || time.Since(time.Unix(issued, 0)) > vouchStarSelectTTL {
		b.respondEphemeral(
			ctx,
			i,
			"⏰ Esta seleção expirou. Use **/avaliar** novamente.",
		)
		return
	}

	b.respondModal(
		ctx,
		i,
		customID(modalIDVouchComment, strconv.Itoa(stars)),
		"Deixe seu Feedback",
		[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputIDVouchComment,
						Label:       "Deixe um comentário sobre o serviço",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "Seu feedback é muito importante...",
						Required:    true,
						MaxLength:   vouchCommentMaxLength,
					},
				},
			},
		},
	)
}

// modalVouchComment posts the pending review, with approve/reject
// controls, to the moderator-only approval channel. The pending message
// is the only record of the review.
func (b *AlvlBot) modalVouchComment(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ModalSubmitInteractionData,
	arg string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	stars, err := strconv.Atoi(arg)
	if err != nil || stars < vouchMinStars || stars > vouchMaxStars {
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	u := getDiscordUser(i)
	if u == nil {
		return
	}
	comment := truncate(
		modalInputValue(data, inputIDVouchComment),
		vouchCommentMaxLength,
	)

	b.respondEphemeral(
		ctx,
		i,
		"Obrigado pelo seu feedback! Ele foi enviado para análise.",
	)

	approvalChannel, err := b.discord.getOrCreateVouchChannel(
		vouchApprovalChannel,
	)
	if err != nil {
		logger.Error("error provisioning approval channel", tint.Err(err))
		return
	}

	starLabel := "estrelas"
	if stars == 1 {
		starLabel = "estrela"
	}
	embed := &discordgo.MessageEmbed{
		Title:     "Nova Avaliação para Aprovação",
		Color:     embedColorOrange,
		Timestamp: time.Now().Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    fmt.Sprintf("De: %s", u.Username),
			IconURL: u.AvatarURL(""),
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Avaliador", Value: u.Mention()},
			{
				Name:  fmt.Sprintf("Avaliação (%d %s)", stars, starLabel),
				Value: starGlyphs(stars),
			},
			{Name: "Comentário", Value: fmt.Sprintf("> %s", comment)},
		},
	}
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Aprovar",
					Style:    discordgo.SuccessButton,
					CustomID: customIDVouchApprove,
				},
				discordgo.Button{
					Label:    "Reprovar",
					Style:    discordgo.DangerButton,
					CustomID: customIDVouchReject,
				},
			},
		},
	}

	if _, err = b.discord.session.ChannelMessageSendComplex(
		approvalChannel.ID,
		&discordgo.MessageSend{Embed: embed, Components: components},
	); err != nil {
		logger.Error("error posting pending review", tint.Err(err))
		return
	}
	logger.Info("review submitted", "user_id", u.ID, "stars", stars)
}

// componentVouchApprove republishes the pending review to the public
// vouch channel under a new title and color, then consumes the pending
// message.
func (b *AlvlBot) componentVouchApprove(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	_ string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	if i.Message == nil || len(i.Message.Embeds) == 0 {
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	publicEmbed := *i.Message.Embeds[0]
	publicEmbed.Title = "Nova Avaliação de Cliente!"
	publicEmbed.Color = embedColorBlue

	publicChannel, err := b.discord.getOrCreateVouchChannel(vouchPublicChannel)
	if err != nil {
		logger.Error("error provisioning public vouch channel", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	if _, err = b.discord.session.ChannelMessageSendComplex(
		publicChannel.ID,
		&discordgo.MessageSend{Embed: &publicEmbed},
	); err != nil {
		logger.Error("error publishing review", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	if err = b.discord.session.ChannelMessageDelete(
		i.ChannelID,
		i.Message.ID,
	); err != nil {
		logger.Error("error deleting pending review", tint.Err(err))
	}

	logger.Info("review approved", "message_id", i.Message.ID)
	b.respondEphemeral(ctx, i, "✅ Avaliação aprovada e publicada!")
}

// componentVouchReject consumes the pending review without publishing it.
func (b *AlvlBot) componentVouchReject(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	_ string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}

	if i.Message == nil {
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}
	if err := b.discord.session.ChannelMessageDelete(
		i.ChannelID,
		i.Message.ID,
	); err != nil {
		logger.Error("error deleting pending review", tint.Err(err))
		b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
		return
	}

	logger.Info("review rejected", "message_id", i.Message.ID)
	b.respondEphemeral(ctx, i, "🗑️ Avaliação reprovada e excluída.")
}

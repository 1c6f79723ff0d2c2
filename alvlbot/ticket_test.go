package alvlbot

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func briefingInputs() map[string]string {
	return map[string]string{
		inputIDBriefingProjectType: "Bot para Discord",
		inputIDBriefingDescription: "Um bot de gerenciamento de comunidade",
		inputIDBriefingFeatures:    "1. Tickets, 2. Auto-role",
		inputIDBriefingBudget:      "R$ 500",
		inputIDBriefingDeadline:    "2 semanas",
	}
}

func openTestTicket(
	t testing.TB,
	bot *AlvlBot,
	u *discordgo.User,
) *Ticket {
	t.Helper()
	i, data := modalInteraction(modalIDBriefing, "panel-chan", u, briefingInputs())
	bot.modalBriefing(testContext(t), i, data, "")

	ticket, err := bot.openTicketForUser(u.ID)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	return ticket
}

func TestModalBriefingOpensTicket(t *testing.T) {
	bot, session := newTestBot(t)
	bot.config.Discord.OwnerUserID = "999"
	u := testUser("123", "João Silva")

	ticket := openTestTicket(t, bot, u)

	assert.Equal(t, "123", ticket.UserID)
	assert.Equal(t, "orcamento-joão-silva", ticket.ChannelName)
	assert.Equal(t, "Bot para Discord", ticket.ProjectType)
	assert.Equal(t, "R$ 500", ticket.Budget)
	assert.Zero(t, ticket.ClosedAt)

	// channel provisioned under the ticket category
	channel := session.channelByName(ticket.ChannelName)
	require.NotNil(t, channel)
	assert.Equal(t, channel.ID, ticket.ChannelID)
	category := session.channelByName(ticketCategory)
	require.NotNil(t, category)
	assert.Equal(t, category.ID, channel.ParentID)

	// requester can see the channel, @everyone can't
	var everyoneDenied, requesterAllowed bool
	for _, overwrite := range channel.PermissionOverwrites {
		if overwrite.ID == testGuildID &&
			overwrite.Deny&discordgo.PermissionViewChannel != 0 {
			everyoneDenied = true
		}
		if overwrite.ID == u.ID &&
			overwrite.Allow&discordgo.PermissionViewChannel != 0 {
			requesterAllowed = true
		}
	}
	assert.True(t, everyoneDenied)
	assert.True(t, requesterAllowed)

	// intro message: owner ping, welcome + submission embeds, action panel
	session.mu.Lock()
	intros := session.sentComplex[channel.ID]
	session.mu.Unlock()
	require.Len(t, intros, 1)
	intro := intros[0]
	assert.Contains(t, intro.Content, "<@999>")
	require.Len(t, intro.Embeds, 2)
	assert.Contains(t, intro.Embeds[0].Title, "Bem-vindo ao seu ticket")
	assert.Equal(t, "📝 Novo Pedido de Orçamento", intro.Embeds[1].Title)
	require.Len(t, intro.Components, 1)
	row, ok := intro.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 3)

	// the deferred response was edited with the channel link
	edit := session.lastEdit()
	require.NotNil(t, edit)
	require.NotNil(t, edit.Content)
	assert.Contains(t, *edit.Content, fmt.Sprintf("<#%s>", channel.ID))
}

func TestModalBriefingOptionalFieldsOmitted(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	inputs := briefingInputs()
	delete(inputs, inputIDBriefingBudget)
	delete(inputs, inputIDBriefingDeadline)

	i, data := modalInteraction(modalIDBriefing, "panel-chan", u, inputs)
	bot.modalBriefing(testContext(t), i, data, "")

	ticket, err := bot.openTicketForUser(u.ID)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Empty(t, ticket.Budget)
	assert.Empty(t, ticket.Deadline)

	session.mu.Lock()
	intros := session.sentComplex[ticket.ChannelID]
	session.mu.Unlock()
	require.Len(t, intros, 1)
	// no budget/deadline fields on the submission embed
	require.Len(t, intros[0].Embeds, 2)
	assert.Len(t, intros[0].Embeds[1].Fields, 3)
}

func TestModalBriefingOneOpenTicketPerUser(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	ticket := openTestTicket(t, bot, u)

	i, data := modalInteraction(modalIDBriefing, "panel-chan", u, briefingInputs())
	bot.modalBriefing(testContext(t), i, data, "")

	edit := session.lastEdit()
	require.NotNil(t, edit)
	require.NotNil(t, edit.Content)
	assert.Contains(t, *edit.Content, "Você já possui um ticket aberto")
	assert.Contains(t, *edit.Content, ticket.ChannelID)

	var count int64
	require.NoError(
		t,
		bot.db.DB().Model(&Ticket{}).Where(
			"user_id = ? AND closed_at = 0", u.ID,
		).Count(&count).Error,
	)
	assert.Equal(t, int64(1), count)
}

func TestModalBriefingAllowedAfterClose(t *testing.T) {
	bot, _ := newTestBot(t)
	u := testUser("123", "foo")

	first := openTestTicket(t, bot, u)
	bot.closeTicket(testContext(t), first, u)

	second := openTestTicket(t, bot, u)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestModalBriefingReopensAfterChannelDeleted(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	first := openTestTicket(t, bot, u)

	// channel removed out-of-band, row still open
	_, err := session.ChannelDelete(first.ChannelID)
	require.NoError(t, err)

	second := openTestTicket(t, bot, u)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.ChannelID, second.ChannelID)

	edit := session.lastEdit()
	require.NotNil(t, edit)
	require.NotNil(t, edit.Content)
	assert.NotContains(t, *edit.Content, "Você já possui um ticket aberto")

	// the stale row was closed out
	var reloaded Ticket
	require.NoError(t, bot.db.DB().First(&reloaded, first.ID).Error)
	assert.NotZero(t, reloaded.ClosedAt)
	assert.Equal(t, u.ID, reloaded.ClosedBy)

	var open int64
	require.NoError(
		t,
		bot.db.DB().Model(&Ticket{}).Where(
			"user_id = ? AND closed_at = 0", u.ID,
		).Count(&open).Error,
	)
	assert.Equal(t, int64(1), open)
}

func TestOpenTicketForChannel(t *testing.T) {
	bot, _ := newTestBot(t)
	u := testUser("123", "foo")

	ticket := openTestTicket(t, bot, u)

	found, err := bot.openTicketForChannel(ticket.ChannelID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ticket.ID, found.ID)

	found, err = bot.openTicketForChannel("not-a-ticket-channel")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestComponentTicketCloseOutsideTicketChannel(t *testing.T) {
	bot, session := newTestBot(t)

	bot.componentTicketClose(
		testContext(t),
		componentInteraction(
			customIDTicketClose,
			"random-chan",
			testUser("1", "foo"),
		),
		"",
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Equal(t, ticketChannelNotice, resp.Data.Content)
}

func TestComponentTicketCloseConfirmationButtons(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")
	ticket := openTestTicket(t, bot, u)

	bot.componentTicketClose(
		testContext(t),
		componentInteraction(customIDTicketClose, ticket.ChannelID, u),
		"",
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "tem certeza")

	require.Len(t, resp.Data.Components, 1)
	row, ok := resp.Data.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)

	confirm, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	prefix, arg := decodeCustomID(confirm.CustomID)
	assert.Equal(t, customIDTicketCloseConfirm, prefix)

	issued, err := strconv.ParseInt(arg, 10, 64)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), time.Unix(issued, 0), 5*time.Second)

	cancel, ok := row.Components[1].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, customIDTicketCloseCancel, cancel.CustomID)
}

func TestComponentTicketCloseConfirmExpired(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")
	ticket := openTestTicket(t, bot, u)

	stale := strconv.FormatInt(
		time.Now().Add(-ticketCloseConfirmTTL-time.Second).Unix(),
		10,
	)
	bot.componentTicketCloseConfirm(
		testContext(t),
		componentInteraction(
			customID(customIDTicketCloseConfirm, stale),
			ticket.ChannelID,
			u,
		),
		stale,
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "confirmação expirou")

	// ticket is still open
	found, err := bot.openTicketForChannel(ticket.ChannelID)
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func TestComponentTicketCloseConfirmClosesTicket(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")
	ticket := openTestTicket(t, bot, u)

	// some channel history for the transcript
	_, err := session.ChannelMessageSend(ticket.ChannelID, "olá")
	require.NoError(t, err)

	issued := strconv.FormatInt(time.Now().Unix(), 10)
	bot.componentTicketCloseConfirm(
		testContext(t),
		componentInteraction(
			customID(customIDTicketCloseConfirm, issued),
			ticket.ChannelID,
			u,
		),
		issued,
	)

	// ticket row marked closed
	var closed Ticket
	require.NoError(
		t,
		bot.db.DB().First(&closed, ticket.ID).Error,
	)
	assert.NotZero(t, closed.ClosedAt)
	assert.Equal(t, u.ID, closed.ClosedBy)

	// channel deleted
	session.mu.Lock()
	deleted := append([]string{}, session.deletedChannels...)
	session.mu.Unlock()
	assert.Contains(t, deleted, ticket.ChannelID)

	// transcript posted to the staff log channel
	logChannel := session.channelByName(ticketLogChannel)
	require.NotNil(t, logChannel)
	session.mu.Lock()
	posts := session.sentComplex[logChannel.ID]
	session.mu.Unlock()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Content, ticket.ChannelName)
	require.Len(t, posts[0].Files, 1)
	assert.Equal(
		t,
		fmt.Sprintf("transcript-%s.txt", ticket.ChannelName),
		posts[0].Files[0].Name,
	)
}

func TestComponentTicketCloseCancel(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")
	ticket := openTestTicket(t, bot, u)

	bot.componentTicketCloseCancel(
		testContext(t),
		componentInteraction(customIDTicketCloseCancel, ticket.ChannelID, u),
		"",
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "Ação cancelada.", resp.Data.Content)

	found, err := bot.openTicketForChannel(ticket.ChannelID)
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func TestComponentTicketAddMemberRequiresTicketChannel(t *testing.T) {
	bot, session := newTestBot(t)

	bot.componentTicketAddMember(
		testContext(t),
		componentInteraction(
			customIDTicketAddMember,
			"random-chan",
			testUser("1", "foo"),
		),
		"",
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Equal(t, ticketChannelNotice, resp.Data.Content)
}

func TestComponentTicketAddMemberOpensModal(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")
	ticket := openTestTicket(t, bot, u)

	bot.componentTicketAddMember(
		testContext(t),
		componentInteraction(customIDTicketAddMember, ticket.ChannelID, u),
		"",
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	require.NotNil(t, resp.Data)
	assert.Equal(t, modalIDTicketAddMember, resp.Data.CustomID)
}

func TestModalTicketAddMember(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")
	ticket := openTestTicket(t, bot, u)

	target := testUser("456", "bar")
	session.mu.Lock()
	session.members[target.ID] = &discordgo.Member{User: target}
	session.mu.Unlock()

	i, data := modalInteraction(
		modalIDTicketAddMember,
		ticket.ChannelID,
		u,
		map[string]string{inputIDTicketMember: "<@456>"},
	)
	bot.modalTicketAddMember(testContext(t), i, data, "")

	session.mu.Lock()
	sets := append([][2]string{}, session.permissionSets...)
	session.mu.Unlock()
	found := false
	for _, set := range sets {
		if set[0] == ticket.ChannelID && set[1] == "456" {
			found = true
		}
	}
	assert.True(t, found, "expected a permission overwrite for the member")

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "✅ Membro Adicionado", resp.Data.Embeds[0].Title)
}

func TestModalTicketAddMemberInvalidID(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")
	ticket := openTestTicket(t, bot, u)

	i, data := modalInteraction(
		modalIDTicketAddMember,
		ticket.ChannelID,
		u,
		map[string]string{inputIDTicketMember: "not-an-id"},
	)
	bot.modalTicketAddMember(testContext(t), i, data, "")

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "ID inválido")
}

func TestModalTicketAddMemberUnknownMember(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")
	ticket := openTestTicket(t, bot, u)

	i, data := modalInteraction(
		modalIDTicketAddMember,
		ticket.ChannelID,
		u,
		map[string]string{inputIDTicketMember: "789"},
	)
	bot.modalTicketAddMember(testContext(t), i, data, "")

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "Usuário não encontrado")
}

func TestModalTicketRemoveMember(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")
	ticket := openTestTicket(t, bot, u)

	target := testUser("456", "bar")
	session.mu.Lock()
	session.members[target.ID] = &discordgo.Member{User: target}
	session.mu.Unlock()

	i, data := modalInteraction(
		modalIDTicketRemoveMember,
		ticket.ChannelID,
		u,
		map[string]string{inputIDTicketMember: "456"},
	)
	bot.modalTicketRemoveMember(testContext(t), i, data, "")

	session.mu.Lock()
	deletes := append([][2]string{}, session.permissionDeletes...)
	session.mu.Unlock()
	require.Len(t, deletes, 1)
	assert.Equal(t, [2]string{ticket.ChannelID, "456"}, deletes[0])

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "✅ Membro Removido", resp.Data.Embeds[0].Title)
}

func TestCommandFormsPostsPanel(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("1", "admin")

	bot.commandForms(
		testContext(t),
		commandInteraction(DiscordSlashCommandForms, "panel-chan", u),
	)

	session.mu.Lock()
	panels := session.sentComplex["panel-chan"]
	session.mu.Unlock()
	require.Len(t, panels, 1)
	require.NotNil(t, panels[0].Embed)
	assert.Contains(t, panels[0].Embed.Title, "Central de Orçamentos")

	require.Len(t, panels[0].Components, 1)
	row, ok := panels[0].Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 1)
	button, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, customIDBriefingStart, button.CustomID)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "Painel de formulários criado")
}

func TestComponentBriefingStartOpensModal(t *testing.T) {
	bot, session := newTestBot(t)

	bot.componentBriefingStart(
		testContext(t),
		componentInteraction(
			customIDBriefingStart,
			"panel-chan",
			testUser("1", "foo"),
		),
		"",
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	require.NotNil(t, resp.Data)
	assert.Equal(t, modalIDBriefing, resp.Data.CustomID)
	assert.Len(t, resp.Data.Components, 5)
}

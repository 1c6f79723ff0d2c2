package alvlbot

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientMember seeds the Client role in the mock guild and returns an
// interaction from a member holding it.
func clientMember(
	t testing.TB,
	session *mockDiscordSession,
	u *discordgo.User,
) *discordgo.InteractionCreate {
	t.Helper()
	role := session.roleByName(RoleClient)
	if role == nil {
		var err error
		role, err = session.GuildRoleCreate(
			testGuildID,
			&discordgo.RoleParams{Name: RoleClient},
		)
		require.NoError(t, err)
	}
	i := commandInteraction(DiscordSlashCommandVouch, "general", u)
	i.Member.Roles = []string{role.ID}
	return i
}

func TestCommandVouchRequiresClientRole(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	_, err := session.GuildRoleCreate(
		testGuildID,
		&discordgo.RoleParams{Name: RoleClient},
	)
	require.NoError(t, err)

	// member without the role
	bot.commandVouch(
		testContext(t),
		commandInteraction(DiscordSlashCommandVouch, "general", u),
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "Apenas membros com o cargo")
	assert.Contains(t, resp.Data.Content, RoleClient)
}

func TestCommandVouchStarSelector(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	bot.commandVouch(testContext(t), clientMember(t, session, u))

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Equal(
		t,
		"Como você avalia o serviço prestado?",
		resp.Data.Content,
	)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)

	require.Len(t, resp.Data.Components, 1)
	row, ok := resp.Data.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, vouchMaxStars)

	for n, component := range row.Components {
		stars := n + 1
		button, buttonOK := component.(discordgo.Button)
		require.True(t, buttonOK)
		assert.Equal(t, starGlyphs(stars), button.Label)

		prefix, arg := decodeCustomID(button.CustomID)
		assert.Equal(t, customIDVouchStars, prefix)
		starsRaw, issuedRaw, found := strings.Cut(arg, ":")
		require.True(t, found)
		assert.Equal(t, strconv.Itoa(stars), starsRaw)
		issued, err := strconv.ParseInt(issuedRaw, 10, 64)
		require.NoError(t, err)
		assert.WithinDuration(
			t,
			time.Now(),
			time.Unix(issued, 0),
			5*time.Second,
		)
	}
}

func TestComponentVouchStarsOpensCommentModal(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	arg := fmt.Sprintf("4:%d", time.Now().Unix())
	bot.componentVouchStars(
		testContext(t),
		componentInteraction(
			customID(customIDVouchStars, arg),
			"general",
			u,
		),
		arg,
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	require.NotNil(t, resp.Data)
	assert.Equal(
		t,
		customID(modalIDVouchComment, "4"),
		resp.Data.CustomID,
	)
}

func TestComponentVouchStarsExpired(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	stale := time.Now().Add(-vouchStarSelectTTL - time.Second).Unix()
	arg := fmt.Sprintf("4:%d", stale)
	bot.componentVouchStars(
		testContext(t),
		componentInteraction(
			customID(customIDVouchStars, arg),
			"general",
			u,
		),
		arg,
	)

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "seleção expirou")
}

func TestComponentVouchStarsInvalidCount(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	for _, arg := range []string{
		fmt.Sprintf("0:%d", time.Now().Unix()),
		fmt.Sprintf("6:%d", time.Now().Unix()),
		"abc:123",
	} {
		bot.componentVouchStars(
			testContext(t),
			componentInteraction(
				customID(customIDVouchStars, arg),
				"general",
				u,
			),
			arg,
		)
		resp := session.lastResponse()
		require.NotNil(t, resp)
		require.NotNil(t, resp.Data)
		assert.Equal(t, DefaultDiscordErrorMessage, resp.Data.Content)
	}
}

func TestModalVouchCommentPostsPendingReview(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	i, data := modalInteraction(
		customID(modalIDVouchComment, "5"),
		"general",
		u,
		map[string]string{inputIDVouchComment: "serviço excelente!"},
	)
	bot.modalVouchComment(testContext(t), i, data, "5")

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "enviado para análise")

	approvalChannel := session.channelByName(vouchApprovalChannel)
	require.NotNil(t, approvalChannel)

	session.mu.Lock()
	posts := session.sentComplex[approvalChannel.ID]
	session.mu.Unlock()
	require.Len(t, posts, 1)
	pending := posts[0]
	require.NotNil(t, pending.Embed)
	assert.Equal(t, "Nova Avaliação para Aprovação", pending.Embed.Title)
	assert.Equal(t, embedColorOrange, pending.Embed.Color)

	require.Len(t, pending.Embed.Fields, 3)
	assert.Equal(t, u.Mention(), pending.Embed.Fields[0].Value)
	assert.Equal(t, "Avaliação (5 estrelas)", pending.Embed.Fields[1].Name)
	assert.Equal(t, starGlyphs(5), pending.Embed.Fields[1].Value)
	assert.Equal(t, "> serviço excelente!", pending.Embed.Fields[2].Value)

	require.Len(t, pending.Components, 1)
	row, ok := pending.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)
	approve, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, customIDVouchApprove, approve.CustomID)
	reject, ok := row.Components[1].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, customIDVouchReject, reject.CustomID)
}

func TestModalVouchCommentSingularStar(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("123", "foo")

	i, data := modalInteraction(
		customID(modalIDVouchComment, "1"),
		"general",
		u,
		map[string]string{inputIDVouchComment: "ok"},
	)
	bot.modalVouchComment(testContext(t), i, data, "1")

	approvalChannel := session.channelByName(vouchApprovalChannel)
	require.NotNil(t, approvalChannel)
	session.mu.Lock()
	posts := session.sentComplex[approvalChannel.ID]
	session.mu.Unlock()
	require.Len(t, posts, 1)
	assert.Equal(
		t,
		"Avaliação (1 estrela)",
		posts[0].Embed.Fields[1].Name,
	)
}

func pendingReviewInteraction(
	u *discordgo.User,
	channelID string,
	componentCustomID string,
) *discordgo.InteractionCreate {
	i := componentInteraction(componentCustomID, channelID, u)
	i.Message = &discordgo.Message{
		ID:        "pending-msg-1",
		ChannelID: channelID,
		Embeds: []*discordgo.MessageEmbed{
			{
				Title: "Nova Avaliação para Aprovação",
				Color: embedColorOrange,
				Fields: []*discordgo.MessageEmbedField{
					{Name: "Avaliador", Value: u.Mention()},
					{Name: "Avaliação (5 estrelas)", Value: starGlyphs(5)},
					{Name: "Comentário", Value: "> muito bom"},
				},
			},
		},
	}
	return i
}

func TestComponentVouchApprove(t *testing.T) {
	bot, session := newTestBot(t)
	moderator := testUser("42", "mod")

	bot.componentVouchApprove(
		testContext(t),
		pendingReviewInteraction(moderator, "approval-chan", customIDVouchApprove),
		"",
	)

	publicChannel := session.channelByName(vouchPublicChannel)
	require.NotNil(t, publicChannel)

	session.mu.Lock()
	posts := session.sentComplex[publicChannel.ID]
	deleted := append([][2]string{}, session.deletedMessages...)
	session.mu.Unlock()

	require.Len(t, posts, 1)
	published := posts[0].Embed
	require.NotNil(t, published)
	assert.Equal(t, "Nova Avaliação de Cliente!", published.Title)
	assert.Equal(t, embedColorBlue, published.Color)
	// fields carried over from the pending review
	require.Len(t, published.Fields, 3)
	assert.Equal(t, "> muito bom", published.Fields[2].Value)

	require.Len(t, deleted, 1)
	assert.Equal(t, [2]string{"approval-chan", "pending-msg-1"}, deleted[0])

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "aprovada e publicada")
}

func TestComponentVouchApproveWithoutEmbed(t *testing.T) {
	bot, session := newTestBot(t)
	u := testUser("42", "mod")

	i := componentInteraction(customIDVouchApprove, "approval-chan", u)
	i.Message = &discordgo.Message{ID: "pending-msg-1"}

	bot.componentVouchApprove(testContext(t), i, "")

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Equal(t, DefaultDiscordErrorMessage, resp.Data.Content)
	assert.Nil(t, session.channelByName(vouchPublicChannel))
}

func TestComponentVouchReject(t *testing.T) {
	bot, session := newTestBot(t)
	moderator := testUser("42", "mod")

	bot.componentVouchReject(
		testContext(t),
		pendingReviewInteraction(moderator, "approval-chan", customIDVouchReject),
		"",
	)

	session.mu.Lock()
	deleted := append([][2]string{}, session.deletedMessages...)
	session.mu.Unlock()
	require.Len(t, deleted, 1)
	assert.Equal(t, [2]string{"approval-chan", "pending-msg-1"}, deleted[0])

	// nothing published
	assert.Nil(t, session.channelByName(vouchPublicChannel))

	resp := session.lastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "reprovada e excluída")
}

// Package alvlbot implements the Alvl Lab community bot: member
// onboarding with role-gated self-registration, a client-upgrade
// questionnaire, a briefing/ticket intake system with transcript
// generation, and a moderated client review workflow. A small read-only
// HTTP API exposes bot status and ticket listings.
package alvlbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var defaultLogWriter io.Writer = os.Stdout

// Set at build time via -ldflags.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Per-user interaction rate limit: a small burst, refilling once per
// second. Keeps one user from hammering panel buttons.
const (
	userLimiterRate  = rate.Limit(1)
	userLimiterBurst = 3
)

const rateLimitedMessage = "⏳ Muitas tentativas. Aguarde um momento e tente novamente."

type commandHandlerFunc func(
	ctx context.Context,
	i *discordgo.InteractionCreate,
)

type componentHandlerFunc func(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	arg string,
)

type modalHandlerFunc func(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ModalSubmitInteractionData,
	arg string,
)

// AlvlBot is the top-level application: Discord gateway, record store,
// ticket database, transcript exporter, and status API.
type AlvlBot struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	db         DBI
	store      *RecordStore
	discord    *Discord
	transcript *TranscriptExporter
	api        *API

	startedAt time.Time
	runMu     sync.Mutex

	// ticketLogChannelID caches the staff ticket log channel once it has
	// been provisioned; the connect handler uses it for the startup
	// message.
	ticketLogChannelID atomic.Pointer[string]

	// Handlers are registered structurally at construction, keyed by
	// command name or custom ID prefix, so components on messages posted
	// before a restart keep working.
	commandHandlers   map[string]commandHandlerFunc
	componentHandlers map[string]componentHandlerFunc
	modalHandlers     map[string]modalHandlerFunc

	userLimiters  map[string]*rate.Limiter
	userLimiterMu sync.Mutex
}

// New initializes the bot from the given config. The Discord session is
// not opened until [AlvlBot.Run].
func New(config *Config) (*AlvlBot, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &AlvlBot{
		config:       config,
		userLimiters: map[string]*rate.Limiter{},
	}

	b.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     b.config.LogLevel,
			AddSource: true,
		},
	)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	store, err := NewRecordStore(config.DataDir, b.logger)
	if err != nil {
		errs = append(errs, err)
	}
	b.store = store

	b.config.Discord.httpClient = b.config.HTTPClient
	disc, err := newDiscord(b.config.Discord)
	if err != nil {
		errs = append(errs, err)
	} else {
		disc.logger = slog.New(
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     b.config.Discord.LogLevel,
					AddSource: true,
				},
			),
		).With(loggerNameKey, "discord")
		disc.bot = b
		b.discord = disc
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     b.config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	b.transcript = newTranscriptExporter(config.Transcript, config.HTTPClient)

	api, err := newAPI(b, config.API)
	if err != nil {
		errs = append(errs, err)
	}
	b.api = api

	b.registerHandlers()

	return b, errors.Join(errs...)
}

// registerHandlers populates the command, component, and modal handler
// registries. Custom ID prefixes are stable across restarts.
func (b *AlvlBot) registerHandlers() {
	b.commandHandlers = map[string]commandHandlerFunc{
		DiscordSlashCommandRegistrationPanel: b.commandRegistrationPanel,
		DiscordSlashCommandForms:             b.commandForms,
		DiscordSlashCommandPersistentViews:   b.commandPersistentViews,
		DiscordSlashCommandVouch:             b.commandVouch,
	}
	b.componentHandlers = map[string]componentHandlerFunc{
		customIDRegistrationNewUser: b.componentRegistrationNewUser,
		customIDRegistrationClient:  b.componentRegistrationClient,
		customIDBriefingStart:       b.componentBriefingStart,
		customIDTicketClose:         b.componentTicketClose,
		customIDTicketCloseConfirm:  b.componentTicketCloseConfirm,
		customIDTicketCloseCancel:   b.componentTicketCloseCancel,
		customIDTicketAddMember:     b.componentTicketAddMember,
		customIDTicketRemoveMember:  b.componentTicketRemoveMember,
		customIDVouchStars:          b.componentVouchStars,
		customIDVouchApprove:        b.componentVouchApprove,
		customIDVouchReject:         b.componentVouchReject,
	}
	b.modalHandlers = map[string]modalHandlerFunc{
		modalIDRegistrationNewUser: b.modalRegistrationNewUser,
		modalIDRegistrationClient:  b.modalRegistrationClient,
		modalIDBriefing:            b.modalBriefing,
		modalIDTicketAddMember:     b.modalTicketAddMember,
		modalIDTicketRemoveMember:  b.modalTicketRemoveMember,
		modalIDVouchComment:        b.modalVouchComment,
	}
}

// ValidateConfig validates the bot config against its binding tags.
func (b *AlvlBot) ValidateConfig() error {
	return structValidator.Struct(b.config)
}

// Run starts the bot and blocks until ctx is canceled or a fatal error
// occurs. Configuration errors abort startup; everything after that is
// recoverable per-interaction.
func (b *AlvlBot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = time.Now()
	logger := b.logger
	ctx = WithLogger(ctx, logger)

	if err := b.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"starting",
		slog.Any("config", b.config),
	)

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()

	gormLogger := newGORMLogger(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     b.config.DatabaseLogLevel,
				AddSource: true,
			},
		),
		b.config.DatabaseSlowThreshold,
	)
	db, err := CreateDB(
		startCtx,
		b.config.DatabaseType,
		b.config.Database,
		gormLogger,
	)
	if err != nil {
		logger.Error("error initializing database", tint.Err(err))
		return err
	}
	b.db = NewDatabase(
		db,
		logger,
		b.config.DatabaseType == dbTypePostgres,
	)

	if err = b.discordInit(startCtx); err != nil {
		logger.Error("error initializing discord", tint.Err(err))
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(
		func() error {
			serveErr := b.api.serve()
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return serveErr
			}
			return nil
		},
	)

	g.Go(
		func() error {
			<-gctx.Done()
			b.shutdown()
			return nil
		},
	)

	logger.Info("bot running")
	return g.Wait()
}

// discordInit opens the gateway session, attaches event handlers,
// registers slash commands, and provisions the ticket log channel.
func (b *AlvlBot) discordInit(ctx context.Context) error {
	session, err := b.discord.newSession()
	if err != nil {
		return err
	}
	b.discord.session = session

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(b.discord.handlerReady()),
		session.AddHandler(b.discord.handlerConnect()),
		session.AddHandler(b.discord.handlerDisconnect()),
		session.AddHandler(b.handlerGuildMemberAdd()),
		session.AddHandler(b.handlerInteractionCreate()),
	}

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	if _, err = b.discord.registerCommands(
		discordgo.WithContext(ctx),
	); err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}

	// Provision the staff ticket log channel up front so the connect
	// handler has somewhere to send the startup message.
	logChannel, err := b.discord.getOrCreateChannel(
		ticketCategory,
		ticketLogChannel,
		nil,
	)
	if err != nil {
		b.logger.Warn(
			"error provisioning ticket log channel",
			tint.Err(err),
		)
	} else {
		b.ticketLogChannelID.Store(&logChannel.ID)
		if b.config.Discord.StartupMessage != "" {
			if sendErr := b.discord.channelMessageSend(
				logChannel.ID,
				b.config.Discord.StartupMessage,
			); sendErr != nil {
				b.logger.Warn(
					"error sending startup message",
					tint.Err(sendErr),
				)
			}
		}
	}

	return nil
}

// shutdown closes the gateway session and the API server, bounded by the
// configured shutdown timeout.
func (b *AlvlBot) shutdown() {
	b.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		b.config.ShutdownTimeout,
	)
	defer cancel()

	for _, remove := range b.discord.discordgoRemoveHandlerFuncs {
		remove()
	}
	if b.discord.session != nil {
		if err := b.discord.session.Close(); err != nil {
			b.logger.Error("error closing discord session", tint.Err(err))
		}
	}
	if b.api != nil && b.api.httpServer != nil {
		if err := b.api.httpServer.Shutdown(shutdownCtx); err != nil {
			b.logger.Error("error shutting down api server", tint.Err(err))
		}
	}
}

// userLimiter returns the per-user rate limiter, creating it on first use.
func (b *AlvlBot) userLimiter(userID string) *rate.Limiter {
	b.userLimiterMu.Lock()
	defer b.userLimiterMu.Unlock()
	limiter, ok := b.userLimiters[userID]
	if !ok {
		limiter = rate.NewLimiter(userLimiterRate, userLimiterBurst)
		b.userLimiters[userID] = limiter
	}
	return limiter
}

// handlerInteractionCreate dispatches incoming interactions to the
// registered handlers. Handler panics are contained so one bad
// interaction can't take down the gateway consumer.
func (b *AlvlBot) handlerInteractionCreate() func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.handleInteraction(context.Background(), i)
	}
}

func (b *AlvlBot) handleInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	logger := b.logger.With(interactionLogAttrs(*i)...)

	u := getDiscordUser(i)
	if u == nil {
		logger.Warn("no user found for interaction")
		return
	}
	logger = logger.With("user_id", u.ID, "username", u.Username)
	ctx = WithLogger(ctx, logger)

	// Interaction tokens expire, so no handler outlives one.
	ctx, cancel := context.WithTimeout(ctx, discordInteractionTokenLifespan)
	defer cancel()

	defer func() {
		if rv := recover(); rv != nil {
			logger.Error("interaction handler panicked", "panic", rv)
		}
	}()

	b.recordInteraction(ctx, i, u)

	if !b.userLimiter(u.ID).Allow() {
		logger.Warn("user rate limited")
		b.respondEphemeral(ctx, i, rateLimitedMessage)
		return
	}

	switch i.Type {
	case discordgo.InteractionPing:
		if err := b.discord.session.InteractionRespond(
			i.Interaction,
			&discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong},
		); err != nil {
			logger.Error("error responding to ping", tint.Err(err))
		}
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		handler, ok := b.commandHandlers[data.Name]
		if !ok {
			logger.Warn("unknown command", "command", data.Name)
			b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
			return
		}
		logger.Info("handling command", "command", data.Name)
		handler(ctx, i)
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		prefix, arg := decodeCustomID(data.CustomID)
		handler, ok := b.componentHandlers[prefix]
		if !ok {
			logger.Warn("unknown component", "custom_id", data.CustomID)
			b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
			return
		}
		logger.Info("handling component", "custom_id", data.CustomID)
		handler(ctx, i, arg)
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		prefix, arg := decodeCustomID(data.CustomID)
		handler, ok := b.modalHandlers[prefix]
		if !ok {
			logger.Warn("unknown modal", "custom_id", data.CustomID)
			b.respondEphemeral(ctx, i, DefaultDiscordErrorMessage)
			return
		}
		logger.Info("handling modal", "custom_id", data.CustomID)
		handler(ctx, i, data, arg)
	default:
		logger.Warn("unhandled interaction type", "type", i.Type.String())
	}
}

// recordInteraction writes an audit row for the interaction. Best-effort.
func (b *AlvlBot) recordInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	interactionLog, err := newInteractionLog(i, u)
	if err != nil {
		logger.Error("error building interaction log", tint.Err(err))
		return
	}
	if _, err = b.db.Create(ctx, interactionLog); err != nil {
		logger.Error("error saving interaction log", tint.Err(err))
	}
}

// respondEphemeral sends an ephemeral text response to an interaction.
func (b *AlvlBot) respondEphemeral(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	content string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	if err := b.discord.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: truncate(content, discordMaxMessageLength),
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
	); err != nil {
		// Responding fails when the interaction was already acknowledged
		// (a deferred handler bailing out mid-flow). A followup still
		// reaches the user in that case.
		logger.Warn(
			"error sending interaction response, sending followup",
			tint.Err(err),
		)
		if _, followupErr := b.discord.session.FollowupMessageCreate(
			i.Interaction,
			true,
			&discordgo.WebhookParams{
				Content: truncate(content, discordMaxMessageLength),
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		); followupErr != nil {
			logger.Error("error sending followup message", tint.Err(followupErr))
		}
	}
}

// respondEphemeralComponents sends an ephemeral response with components.
func (b *AlvlBot) respondEphemeralComponents(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	content string,
	components []discordgo.MessageComponent,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	if err := b.discord.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    truncate(content, discordMaxMessageLength),
				Flags:      discordgo.MessageFlagsEphemeral,
				Components: components,
			},
		},
	); err != nil {
		logger.Error("error sending interaction response", tint.Err(err))
	}
}

// respondEmbed sends a non-ephemeral embed response, visible in the
// channel the interaction came from.
func (b *AlvlBot) respondEmbed(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	embed *discordgo.MessageEmbed,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	if err := b.discord.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{embed},
			},
		},
	); err != nil {
		logger.Error("error sending embed response", tint.Err(err))
	}
}

// respondModal opens a modal in response to an interaction.
func (b *AlvlBot) respondModal(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	modalCustomID string,
	title string,
	components []discordgo.MessageComponent,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	if err := b.discord.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID:   modalCustomID,
				Title:      truncate(title, discordModalInputLabelMaxLength),
				Components: components,
			},
		},
	); err != nil {
		logger.Error("error opening modal", tint.Err(err))
	}
}

// deferEphemeral acknowledges an interaction with a deferred ephemeral
// response, reporting whether the acknowledgment succeeded.
func (b *AlvlBot) deferEphemeral(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) bool {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	if err := b.discord.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
	); err != nil {
		logger.Error("error deferring interaction", tint.Err(err))
		return false
	}
	return true
}

// editResponse replaces the content of a deferred interaction response.
func (b *AlvlBot) editResponse(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	content string,
) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	content = truncate(content, discordMaxMessageLength)
	if _, err := b.discord.session.InteractionResponseEdit(
		i.Interaction,
		&discordgo.WebhookEdit{Content: &content},
	); err != nil {
		logger.Error("error editing interaction response", tint.Err(err))
	}
}

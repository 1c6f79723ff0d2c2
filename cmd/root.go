package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/EnzoPontoniDev/Alvl-Bot/alvlbot"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = alvlbot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "alvlbot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	// initConfig runs once per command execution. Drop any values set by
	// a previous execution so levels are re-read from the environment
	// instead of the *slog.LevelVar stored below.
	viper.Reset()

	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", alvlbot.DefaultDatabase)
	viper.SetDefault("database_type", alvlbot.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		alvlbot.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		alvlbot.DefaultDatabaseLogLevel.String(),
	)
	viper.SetDefault("data_dir", alvlbot.DefaultDataDir)
	viper.SetDefault("development", false)

	viper.SetDefault("log_level", alvlbot.DefaultLogLevel.String())

	viper.SetDefault("startup_timeout", alvlbot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", alvlbot.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.owner_user_id", "")
	viper.SetDefault(
		"discord.log_level",
		alvlbot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		alvlbot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		alvlbot.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault(
		"discord.startup_message",
		alvlbot.DefaultDiscordStartupMessage,
	)
	viper.SetDefault(
		"discord.custom_status",
		alvlbot.DefaultDiscordCustomStatus,
	)

	// API config
	viper.SetDefault("api.listen", alvlbot.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.log_level", alvlbot.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", alvlbot.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		alvlbot.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", alvlbot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", alvlbot.DefaultIdleTimeout)

	// Transcript exporter config
	viper.SetDefault("transcript.exporter_url", "")
	viper.SetDefault(
		"transcript.timeout",
		alvlbot.DefaultTranscriptExportTimeout,
	)

	envPrefix := os.Getenv(alvlbot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = alvlbot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	for _, key := range []string{
		"log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"database_log_level",
		"api.log_level",
	} {
		setViperLogLevel(key)
	}
}

// setViperLogLevel replaces the string at the given viper key with a
// *slog.LevelVar for the mapstructure decode hook. A key already holding
// a *slog.LevelVar is left alone.
func setViperLogLevel(key string) {
	if _, ok := viper.Get(key).(*slog.LevelVar); ok {
		return
	}
	logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
	if err != nil {
		log.Fatalf("error parsing %s: %v", key, err)
	}
	viper.Set(key, logLevelVar)
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}

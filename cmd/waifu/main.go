package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-go-golems/waifu-coder/cmd/waifu/cmds"
	"github.com/go-go-golems/waifu-coder/pkg/config"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "waifu",
	Short: "Chat and code with anime-styled AI personas",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() error {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	format := viper.GetString("log-format")
	if format == "" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		}
	}

	return InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  format,
		WithCaller: viper.GetBool("with-caller"),
	})
}

func initCommands(rootCmd *cobra.Command, configPath string) error {
	viper.SetEnvPrefix("waifu")

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
	} else {
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.waifu-coder")
		viper.AddConfigPath("/etc/waifu-coder")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/waifu-coder")
		}
	}

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	err = viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		return err
	}

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	// default is json
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, //days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		return fmt.Errorf("unknown log level %q", config.Level)
	}

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to config file")
	pf.String("log-level", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	pf.String("log-format", "", "Log format (json, text); text when stderr is a terminal")
	pf.String("log-file", "", "Also write logs to this file (rotated)")
	pf.Bool("with-caller", false, "Log caller")
	pf.BoolP("verbose", "v", false, "Verbose output")

	pf.String(config.FlagAPIKey, "", "Cerebras API key")
	pf.String(config.FlagModel, "", "Model name")
	pf.String(config.FlagEndpoint, "", "OpenAI compatible endpoint")
	pf.Float64(config.FlagTemperature, 0, "Sampling temperature (0.7 - 0.8)")
	pf.Int(config.FlagMaxTokens, 0, "Max reply tokens (1000 - 1500)")
	pf.String(config.FlagTheme, "", "UI theme")
	pf.Bool(config.FlagAnimations, true, "Enable animations")
	pf.String(config.FlagStore, "sqlite", "Storage backend (sqlite, yaml, memory)")
	pf.String(config.FlagStorePath, "", "Storage file (defaults to the user config dir)")
	pf.String(config.FlagCatalog, "", "Persona catalog YAML overriding the built-in one")
	pf.BoolP("yes", "y", false, "Do not ask for confirmation")
	pf.Bool("events", false, "Print every event as YAML")

	// the config file has to be known before the flags are parsed
	configPath := ""
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configPath = os.Args[i+1]
		} else if strings.HasPrefix(arg, "--config=") {
			configPath = strings.TrimPrefix(arg, "--config=")
		}
	}

	err := initCommands(rootCmd, configPath)
	cobra.CheckErr(err)

	rootCmd.AddCommand(
		cmds.NewPersonaCommand(),
		cmds.NewChatCommand(),
		cmds.NewHistoryCommand(),
		cmds.NewConfigCommand(),
		cmds.NewBackupCommand(),
	)
}

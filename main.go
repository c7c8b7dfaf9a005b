package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AbNAt-Cell/NoteTaker/config"
	"github.com/AbNAt-Cell/NoteTaker/deepgram"
	"github.com/AbNAt-Cell/NoteTaker/segment"
	"github.com/AbNAt-Cell/NoteTaker/sink"
	"github.com/AbNAt-Cell/NoteTaker/stt"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(setupCmd)

	rootCmd.PersistentFlags().
		String("deepgram-api-key", "", "Deepgram API key")
	rootCmd.PersistentFlags().
		String("language", "", "Transcription language (default en)")
	rootCmd.PersistentFlags().
		String("reconnect-policy", "", "Provider reconnect policy: fail-once or stubborn")
	rootCmd.PersistentFlags().
		String("filter-file", "", "YAML file with extra hallucination phrases and patterns")
	rootCmd.PersistentFlags().
		String("sqlite", "", "Keep transcript snapshots in this SQLite file")
	rootCmd.PersistentFlags().Bool("debug", false, "Log interim segments")

	viper.BindPFlag(
		config.KeyDeepgramAPIKey,
		rootCmd.PersistentFlags().Lookup("deepgram-api-key"),
	)
	viper.BindPFlag(config.KeyLanguage, rootCmd.PersistentFlags().Lookup("language"))
	viper.BindPFlag(
		config.KeyPolicy,
		rootCmd.PersistentFlags().Lookup("reconnect-policy"),
	)
	viper.BindPFlag(config.KeyFilterFile, rootCmd.PersistentFlags().Lookup("filter-file"))
	viper.BindPFlag(config.KeySQLitePath, rootCmd.PersistentFlags().Lookup("sqlite"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = createLogger(viper.GetBool("debug"))
}

var rootCmd = &cobra.Command{
	Use:   "notetaker",
	Short: "Live meeting audio to transcript relay",
	Long: `notetaker relays live meeting audio to Deepgram and republishes
the transcript segments to live consumers and a durable store.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func createLogger(debug bool) *log.Logger {
	l := log.New(os.Stderr)
	if debug {
		l.SetLevel(log.DebugLevel)
		l.SetReportCaller(true)
		l.SetCallerFormatter(
			func(file string, line int, funcName string) string {
				path, err := filepath.Rel(".", file)
				if err != nil {
					path = file
				}
				return fmt.Sprintf("%s:%d", path, line)
			},
		)
	}

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))
	l.SetStyles(styles)

	return l
}

func loadConfig() *config.Config {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Fatal("load config", "error", err)
	}
	if cfg.DeepgramAPIKey == "" {
		logger.Warn("DEEPGRAM_API_KEY is not set; streams will be refused")
	}
	return cfg
}

func newProvider(cfg *config.Config) stt.Provider {
	hear := logger.WithPrefix("hear")
	return stt.NewDeepgramProvider(deepgram.NewClient(cfg.DeepgramAPIKey, hear), hear)
}

func newFilter(cfg *config.Config) (*segment.Filter, error) {
	if cfg.FilterFile == "" {
		return segment.DefaultFilter(), nil
	}
	return segment.LoadFilter(cfg.FilterFile)
}

// newPublisher connects every downstream channel the configuration
// names. The returned cleanup closes them.
func newPublisher(ctx context.Context, cfg *config.Config) (*stt.Publisher, func(), error) {
	var (
		live    []stt.LiveSink
		durable []stt.DurableSink
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	data := logger.WithPrefix("data")

	if cfg.RedisURL != "" {
		client, err := sink.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { client.Close() })
		durable = append(durable, sink.NewRedisStream(client, cfg.RedisStream, cfg.RedisMaxLen))
		if cfg.RedisChannel != "" {
			live = append(live, sink.NewRedisChannel(client, cfg.RedisChannel))
		}
		data.Info("redis", "stream", cfg.RedisStream)
	}

	if cfg.DatabaseURL != "" {
		pool, err := sink.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		durable = append(durable, sink.NewPostgres(pool))
		data.Info("postgres", "table", "transcript_snapshots")
	}

	if cfg.NATSURL != "" {
		nc, err := sink.ConnectNATS(cfg.NATSURL, data)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() {
			nc.Drain()
			nc.Close()
		})
		live = append(live, sink.NewNATS(nc, cfg.NATSSubject))
		data.Info("nats", "subject", cfg.NATSSubject+".<uid>")
	}

	if len(cfg.KafkaBrokers) > 0 {
		w := sink.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, data)
		closers = append(closers, func() { w.Close() })
		durable = append(durable, sink.NewKafka(w))
		data.Info("kafka", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	if cfg.SQLitePath != "" {
		store, err := sink.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { store.Close() })
		durable = append(durable, store)
		data.Info("sqlite", "path", cfg.SQLitePath)
	}

	return stt.NewPublisher(data, live, durable), cleanup, nil
}

package main

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AbNAt-Cell/NoteTaker/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively write config.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		RunSetup()
	},
}

func RunSetup() {
	log.Info("Starting setup...")

	var (
		apiKey      = viper.GetString(config.KeyDeepgramAPIKey)
		language    = viper.GetString(config.KeyLanguage)
		policy      = viper.GetString(config.KeyPolicy)
		redisURL    = viper.GetString(config.KeyRedisURL)
		databaseURL = viper.GetString(config.KeyDatabaseURL)
		natsURL     = viper.GetString(config.KeyNATSURL)
	)
	if language == "" {
		language = "en"
	}
	if policy == "" {
		policy = "fail-once"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your Deepgram API Key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Transcription language").
				Value(&language),
			huh.NewSelect[string]().
				Title("When the provider connection drops").
				Options(
					huh.NewOption("Fail the stream", "fail-once"),
					huh.NewOption("Keep reconnecting", "stubborn"),
				).
				Value(&policy),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Redis URL (empty to skip)").
				Placeholder("redis://localhost:6379/0").
				Value(&redisURL),
			huh.NewInput().
				Title("Postgres URL (empty to skip)").
				Placeholder("postgres://localhost:5432/notetaker").
				Value(&databaseURL),
			huh.NewInput().
				Title("NATS URL (empty to skip)").
				Placeholder("nats://localhost:4222").
				Value(&natsURL),
		),
	)

	if err := form.Run(); err != nil {
		log.Fatal("Error during setup", "error", err)
	}

	viper.Set(config.KeyDeepgramAPIKey, apiKey)
	viper.Set(config.KeyLanguage, language)
	viper.Set(config.KeyPolicy, policy)
	viper.Set(config.KeyRedisURL, redisURL)
	viper.Set(config.KeyDatabaseURL, databaseURL)
	viper.Set(config.KeyNATSURL, natsURL)

	if _, err := config.Load(viper.GetViper()); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}
	if err := viper.WriteConfigAs("config.yaml"); err != nil {
		log.Fatal("Error saving config.yaml", "error", err)
	}

	log.Info("Setup completed successfully!")
}

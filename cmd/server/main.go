package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/ai"
	"github.com/rpgscribe/rpgscribe/internal/audio"
	"github.com/rpgscribe/rpgscribe/internal/cleanup"
	"github.com/rpgscribe/rpgscribe/internal/config"
	"github.com/rpgscribe/rpgscribe/internal/handlers"
	"github.com/rpgscribe/rpgscribe/internal/pipeline"
	"github.com/rpgscribe/rpgscribe/internal/podcast"
	"github.com/rpgscribe/rpgscribe/internal/queue"
	"github.com/rpgscribe/rpgscribe/internal/storage"
	"github.com/rpgscribe/rpgscribe/internal/store"
	"github.com/rpgscribe/rpgscribe/internal/story"
	"github.com/rpgscribe/rpgscribe/internal/transcription"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)
	return log
}

func main() {
	log := newLogger()

	configPath := os.Getenv("RPGSCRIBE_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	loader := config.NewLoader(configPath, 5*time.Minute)
	cfg, err := loader.Current()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	if err := cleanup.EnsureTempDirExists(cfg.Storage.TempDir); err != nil {
		log.WithError(err).Fatal("failed to create temp directory")
	}
	if err := os.MkdirAll(cfg.Storage.OutputDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create output directory")
	}

	sessions, err := store.NewSQLiteStore(cfg.Storage.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to open session store")
	}
	defer sessions.Close()

	// Local object storage is the default; Google Drive takes over when
	// credentials are present.
	local := storage.NewLocalStorage(cfg.Storage.OutputDir, cfg.Storage.BaseURL)
	var objects storage.ObjectStore = local
	if cfg.GoogleDrive.CredentialsFile != "" {
		if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
			drive, err := storage.NewDriveStorage(
				cfg.GoogleDrive.CredentialsFile,
				cfg.GoogleDrive.TokenFile,
				cfg.GoogleDrive.FolderName,
			)
			if err != nil {
				log.WithError(err).Warn("Google Drive not available, storing podcasts locally")
			} else {
				objects = drive
				log.Info("Google Drive storage enabled")
			}
		}
	}

	gateway := ai.NewGateway(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	speechCfg := ai.GenerationConfig{Model: cfg.Models.Speech, Temperature: cfg.Models.Temperature}
	textCfg := ai.GenerationConfig{
		Model:       cfg.Models.Text,
		Temperature: cfg.Models.Temperature,
		MaxTokens:   cfg.Models.MaxTokens,
	}

	splitter := audio.NewSplitter(log,
		audio.WithMaxSegmentSeconds(cfg.Pipeline.MaxSegmentSeconds),
		audio.WithTempRoot(cfg.Storage.TempDir),
	)
	transcriber := transcription.NewSegmentTranscriber(gateway, speechCfg, log)
	storyGen := story.NewGenerator(gateway, textCfg, log).WithSummaryBudget(cfg.Pipeline.SummaryBudgetChars)
	scriptGen := podcast.NewScriptGenerator(gateway, textCfg, log)
	synthesizer := podcast.NewVoiceSynthesizer(gateway, log)
	voices := podcast.VoiceAssignment{
		types.RoleHost:  cfg.Voices.Host,
		types.RoleGuest: cfg.Voices.Guest,
	}

	orchestrator := pipeline.New(splitter, transcriber, storyGen, scriptGen, synthesizer,
		sessions, objects, voices, cfg.Pipeline.MaxScriptChars, log)

	pool := queue.NewWorkerPool(cfg.Workers.Count, orchestrator, sessions, log)
	pool.Start(context.Background())

	janitor := cleanup.NewScheduler(cfg.Storage.TempDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		log,
	)
	janitor.Start()
	defer janitor.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Limits.MaxFileSizeMB * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	processHandler := handlers.NewProcessHandler(pool, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB, log)
	regenerateHandler := handlers.NewRegenerateHandler(pool, sessions, cfg.Pipeline.MaxScriptChars, log)
	sessionHandler := handlers.NewSessionHandler(sessions, log)
	progressStream := handlers.NewProgressStream(sessions, time.Second, log)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	app.Post("/campaigns/:campaignId/sessions/:sessionId/process", processHandler.Handle)
	app.Post("/campaigns/:campaignId/sessions/:sessionId/podcast", regenerateHandler.Handle)

	app.Get("/campaigns/:campaignId/sessions", sessionHandler.List)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/progress", sessionHandler.Progress)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/transcript", sessionHandler.Transcript)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/story", sessionHandler.Story)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/script", sessionHandler.Script)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/podcast", sessionHandler.Podcast)

	app.Get("/ws/campaigns/:campaignId/sessions/:sessionId/progress", websocket.New(progressStream.Handle))

	// Podcast files stored locally are served straight from disk.
	app.Static("/files", local.RootDir())

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("server shutdown failed")
		}
		pool.Stop()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("server starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/semaphore"

	"room-renovator-bot/internal/config"
	"room-renovator-bot/internal/credential"
	"room-renovator-bot/internal/gemini"
	"room-renovator-bot/internal/handlers"
	"room-renovator-bot/internal/httpclient"
	"room-renovator-bot/internal/mediagroup"
	"room-renovator-bot/internal/pipeline"
	"room-renovator-bot/internal/telegram"
	"room-renovator-bot/internal/transcript"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	creds, keys, err := newCredentials(cfg, tg)
	if err != nil {
		logger.Error("credential init failed", "err", err)
		os.Exit(1)
	}

	gem := gemini.New(gemini.Options{
		Credentials: creds,
		BaseURL:     cfg.GeminiBaseURL,
		APIVersion:  cfg.GeminiAPIVersion,
		HTTPClient:  httpClient,
		Logger:      logger,
	})

	transcripts := transcript.NewStore(transcript.Options{
		MaxEntries: cfg.MaxTranscriptEntries,
	})

	// The handler renders pipeline events, and the pipeline is one of
	// the handler's collaborators. The indirection through NotifierFunc
	// breaks the construction cycle.
	var handler *handlers.Handler
	ctrl := pipeline.New(pipeline.Options{
		Generator:   gem,
		Transcripts: transcripts,
		Credentials: creds,
		Notifier: pipeline.NotifierFunc(func(event pipeline.Event) {
			handler.Notify(event)
		}),
		Logger: logger,
	})

	handler = handlers.New(handlers.Options{
		Telegram:    tg,
		Pipeline:    ctrl,
		Transcripts: transcripts,
		Keys:        keys,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sem := semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	onGroupFlush := func(group mediagroup.Group) {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}

		go func() {
			defer sem.Release(1)

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onGroupFlush,
	})
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "credential_mode", cfg.CredentialMode)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}

			go func(update telegram.Update) {
				defer sem.Release(1)

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}

// newCredentials builds the key provider for the configured mode. The
// returned FileStore is non-nil only when users manage their own keys
// via /apikey.
func newCredentials(cfg config.Config, tg *telegram.Client) (credential.Provider, *credential.FileStore, error) {
	switch cfg.CredentialMode {
	case config.CredentialModeEnv:
		return credential.NewStatic(cfg.GeminiAPIKey), nil, nil
	case config.CredentialModeStored:
		store, err := credential.NewFileStore(cfg.KeyStorePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.CredentialModePrompt:
		store, err := credential.NewFileStore(cfg.KeyStorePath)
		if err != nil {
			return nil, nil, err
		}
		prompter := credential.NewChatPrompter(store, func(ctx context.Context) error {
			chatID, ok := credential.ChatFrom(ctx)
			if !ok {
				return credential.ErrNoCredential
			}
			return tg.SendText(chatID,
				"🔑 I need a Gemini API key before I can renovate.\n\n"+
					"Get one at https://aistudio.google.com/apikey, then send:\n"+
					"/apikey <your key>\n\n"+
					"After that, send your room photo again.")
		})
		return prompter, store, nil
	default:
		return nil, nil, errors.New("unknown credential mode " + cfg.CredentialMode)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

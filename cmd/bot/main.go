package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tg "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/Jasonzhang2023/group-assist-bot/internal/api"
	"github.com/Jasonzhang2023/group-assist-bot/internal/bot"
	"github.com/Jasonzhang2023/group-assist-bot/internal/config"
	"github.com/Jasonzhang2023/group-assist-bot/internal/db/sqlite"
	"github.com/Jasonzhang2023/group-assist-bot/internal/handlers/archive"
	"github.com/Jasonzhang2023/group-assist-bot/internal/handlers/chat"
	"github.com/Jasonzhang2023/group-assist-bot/internal/handlers/moderation"
	"github.com/Jasonzhang2023/group-assist-bot/internal/infra"
	"github.com/Jasonzhang2023/group-assist-bot/internal/lifecycle"
	"github.com/Jasonzhang2023/group-assist-bot/internal/observability"
	"github.com/Jasonzhang2023/group-assist-bot/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.GabFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := observability.Init(ctx, cfg.MetricsAddr); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	dbClient, err := sqlite.NewSQLiteClient(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatalln("cant open database")
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.WithError(err).Errorln("cant close database")
		}
	}()

	botAPI, err := bot.NewBot(cfg.TelegramAPIToken, bot.NewHTTPClient(cfg.HTTP))
	if err != nil {
		log.WithError(err).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	bgBotAPI, err := bot.NewBot(cfg.TelegramAPIToken, bot.NewBackgroundHTTPClient(cfg.HTTP))
	if err != nil {
		log.WithError(err).Fatalln("cant initialize background bot api")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}

	registry := tasks.NewRegistry()
	defer registry.Cleanup()

	ops := bot.NewOperations(botAPI, cfg, registry)
	bgOps := bot.NewOperations(bgBotAPI, cfg, registry)
	service := bot.NewService(ops, bgOps, dbClient, registry)

	mutes := moderation.NewMuteService(ops, registry)
	gatekeeper := chat.NewGatekeeper(dbClient, ops, bgOps, registry)

	bot.RegisterUpdateHandler("spam", moderation.NewSpamControl(dbClient, ops, mutes))
	bot.RegisterUpdateHandler("gatekeeper", gatekeeper)
	bot.RegisterUpdateHandler("archive", archive.NewArchiver(dbClient))
	processor := bot.NewUpdateProcessor(service)

	if err := registerWebhook(botAPI, cfg.WebhookURL); err != nil {
		log.WithError(err).Fatalln("cant register webhook")
	}

	notify := func(ctx context.Context, chatID int64, text string) {
		if _, err := bgOps.SendText(ctx, chatID, text); err != nil {
			log.WithError(err).WithField("chat", chatID).Error("cant send transition notice")
		}
	}

	runtime := lifecycle.NewRuntime(
		chat.NewAutoMuteScheduler(dbClient, mutes, notify, cfg.Location()),
		chat.NewPendingJanitor(dbClient, cfg.Verification.JanitorInterval),
		httpapi.NewServer(processor, dbClient, ops, mutes, gatekeeper),
	)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start components")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case <-infra.MonitorExecutable(gctx):
			return errors.New("executable file was modified")
		}
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Infoln("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := runtime.Stop(shutdownCtx); err != nil {
		log.WithError(err).Errorln("components stopped with errors")
	}
	registry.Cleanup()
}

// registerWebhook drops any stale webhook and points Telegram at this
// instance.
func registerWebhook(botAPI *tg.BotAPI, baseURL string) error {
	if baseURL == "" {
		return errors.New("webhook url is required")
	}
	if _, err := botAPI.Request(tg.DeleteWebhookConfig{DropPendingUpdates: false}); err != nil {
		return errors.WithMessage(err, "cant drop stale webhook")
	}
	wh, err := tg.NewWebhook(strings.TrimRight(baseURL, "/") + "/webhook")
	if err != nil {
		return errors.WithMessage(err, "cant build webhook config")
	}
	wh.AllowedUpdates = []string{"message", "channel_post"}
	if _, err := botAPI.Request(wh); err != nil {
		return errors.WithMessage(err, "cant set webhook")
	}
	log.WithField("url", baseURL).Info("webhook registered")
	return nil
}

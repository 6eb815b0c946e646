package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medtick/medtick/config"
	"github.com/medtick/medtick/internal/clients/caldav"
	relayclient "github.com/medtick/medtick/internal/clients/relay"
	"github.com/medtick/medtick/internal/notify"
	"github.com/medtick/medtick/internal/scheduler"
	"github.com/medtick/medtick/internal/service"
	"github.com/medtick/medtick/internal/storage"
	"github.com/medtick/medtick/internal/tracker"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	notifiers := notify.Multi{notify.Console{}}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("Telegram notifier disabled: %v", err)
		} else {
			notifiers = append(notifiers, tg)
		}
	}

	engine, err := tracker.New(store, notifiers, cfg.Timezone)
	if err != nil {
		log.Fatalf("Failed to init engine: %v", err)
	}
	defer engine.Close()

	caldavClient := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword)
	calendarSvc := service.NewCalendarService(caldavClient, cfg.Timezone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var relayClient *relayclient.Client
	if cfg.RelayURL != "" {
		relayClient = relayclient.NewClient(cfg.RelayURL, engine.HandleMessage)
		go relayClient.Run(ctx)
	}

	sched := scheduler.New(cfg.Timezone, engine)
	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	mux := http.NewServeMux()
	api := tracker.NewAPI(engine, relayClient, calendarSvc, cfg.APIUsername, cfg.APIPassword)
	api.Register(mux)
	mux.Handle("/", http.FileServer(http.Dir(cfg.WebDir)))

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Tracker started on :%s", cfg.APIPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}

	log.Println("Tracker stopped")
}

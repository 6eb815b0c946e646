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
	"github.com/medtick/medtick/internal/relay"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	events := relay.NewEventLog(cfg.EventLogPath)
	srv := relay.NewServer(events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SerialPort != "" {
		reader, err := relay.OpenSerial(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			log.Printf("Serial port unavailable: %v", err)
		} else {
			srv.SetSerialConnected(true)
			go reader.Run(ctx, func(medication string) {
				srv.BroadcastMedicationTaken(medication, "arduino")
			})
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)
	mux.HandleFunc("/status", srv.HandleStatus)
	mux.HandleFunc("/logs", srv.HandleLogs)
	mux.Handle("/", http.FileServer(http.Dir(cfg.WebDir)))

	server := &http.Server{
		Addr:    ":" + cfg.RelayPort,
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Relay started on :%s", cfg.RelayPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}

	log.Println("Relay stopped")
}

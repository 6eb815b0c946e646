package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabasePath string
	Timezone     *time.Location

	APIPort     string
	APIUsername string
	APIPassword string
	WebDir      string

	RelayURL  string
	RelayPort string

	SerialPort string
	SerialBaud int

	EventLogPath string

	TelegramToken  string
	TelegramChatID int64

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
}

func Load() (*Config, error) {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/medtick.db"
	}

	tzName := os.Getenv("TIMEZONE")
	if tzName == "" {
		tzName = "Local"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	apiPort := os.Getenv("API_PORT")
	if apiPort == "" {
		apiPort = "8080"
	}

	webDir := os.Getenv("WEB_DIR")
	if webDir == "" {
		webDir = "./web"
	}

	relayPort := os.Getenv("RELAY_PORT")
	if relayPort == "" {
		relayPort = "8081"
	}

	serialBaud := 115200
	if b := os.Getenv("SERIAL_BAUD"); b != "" {
		serialBaud, err = strconv.Atoi(b)
		if err != nil {
			return nil, fmt.Errorf("SERIAL_BAUD must be a number: %w", err)
		}
	}

	eventLogPath := os.Getenv("EVENT_LOG_PATH")
	if eventLogPath == "" {
		eventLogPath = "./data/events.jsonl"
	}

	var chatID int64
	if c := os.Getenv("TELEGRAM_CHAT_ID"); c != "" {
		chatID, err = strconv.ParseInt(c, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be a number: %w", err)
		}
	}

	return &Config{
		DatabasePath:   dbPath,
		Timezone:       tz,
		APIPort:        apiPort,
		APIUsername:    os.Getenv("API_USERNAME"),
		APIPassword:    os.Getenv("API_PASSWORD"),
		WebDir:         webDir,
		RelayURL:       os.Getenv("RELAY_URL"),
		RelayPort:      relayPort,
		SerialPort:     os.Getenv("SERIAL_PORT"),
		SerialBaud:     serialBaud,
		EventLogPath:   eventLogPath,
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: chatID,
		CalDAVURL:      os.Getenv("CALDAV_URL"),
		CalDAVUsername: os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword: os.Getenv("CALDAV_PASSWORD"),
	}, nil
}

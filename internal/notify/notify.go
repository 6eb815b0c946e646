package notify

import (
	"fmt"
	"log"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers a user-facing notification. Delivery is best-effort:
// implementations log failures and never return them, because a missed
// notification must not break the reminder cycle.
type Notifier interface {
	Notify(title, body string)
}

// Multi fans one notification out to several channels.
type Multi []Notifier

func (m Multi) Notify(title, body string) {
	for _, n := range m {
		n.Notify(title, body)
	}
}

// Console writes the notification to the terminal with an audible bell.
type Console struct{}

func (Console) Notify(title, body string) {
	fmt.Fprintf(os.Stdout, "\a[%s] %s\n", title, body)
}

// Telegram sends notifications to a single chat via a bot.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Notifications authorized as @%s", api.Self.UserName)
	return &Telegram{api: api, chatID: chatID}, nil
}

func (t *Telegram) Notify(title, body string) {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("🔔 <b>%s</b>\n\n%s", title, body))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.api.Send(msg); err != nil {
		log.Printf("Failed to send telegram notification: %v", err)
	}
}

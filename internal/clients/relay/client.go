package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medtick/medtick/internal/domain"
)

const reconnectDelay = 5 * time.Second

// ErrNotConnected is returned by Send while the relay is unreachable.
var ErrNotConnected = errors.New("relay not connected")

// Handler receives every validated message from the relay.
type Handler func(domain.Message)

// Client maintains a websocket connection to the event relay,
// reconnecting every five seconds while the relay is down.
type Client struct {
	url     string
	handler Handler

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(url string, handler Handler) *Client {
	return &Client{url: url, handler: handler}
}

// Run connects and reads until the context is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Relay connection lost: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	log.Printf("Connected to relay at %s", c.url)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		msg, err := domain.ParseMessage(data)
		if err != nil {
			log.Printf("Ignoring relay message: %v", err)
			continue
		}
		c.handler(msg)
	}
}

// Connected reports whether a relay connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one message to the relay.
func (c *Client) Send(msg domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

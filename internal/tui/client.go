package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/waystation/wayside/internal/panel"
)

const writeWait = 10 * time.Second

// Client is a panel connection over the websocket served by wayside.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial connects to the panel websocket at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial panel %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial panel %s: %w", url, err)
	}
	conn.SetReadLimit(1 << 20)
	return &Client{conn: conn}, nil
}

// Receive blocks for the next message from wayside.
func (c *Client) Receive() (panel.Message, error) {
	var msg panel.Message
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode panel message: %w", err)
	}
	return msg, nil
}

// Send writes msg to wayside.
func (c *Client) Send(msg panel.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

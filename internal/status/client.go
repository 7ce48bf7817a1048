// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package status

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Client reads snapshots from a scanner's status feed.
type Client struct {
	conn *websocket.Conn
}

// FeedURL returns the websocket URL for a scanner at host:port.
func FeedURL(host string, port int) string {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: Path}
	return u.String()
}

// Dial connects to the feed at wsURL.
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}
	if u.Path == "" {
		u.Path = Path
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("status feed connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("status feed connection failed: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Next blocks for the next snapshot. Non-binary messages are skipped.
func (c *Client) Next() (Snapshot, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return Snapshot{}, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		return Decode(data)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

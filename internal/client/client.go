// Package client talks to a running parknowd over HTTP and WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jsherman999/parknow/internal/catalog"
	"github.com/jsherman999/parknow/internal/parking"
)

// ErrStop ends Watch without an error when returned from the callback.
var ErrStop = errors.New("stop watching")

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Dialer:  websocket.DefaultDialer,
	}
}

func (c *Client) Locations(ctx context.Context) (map[string]catalog.Summary, error) {
	var out map[string]catalog.Summary
	if err := c.getJSON(ctx, "/locations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Slots(ctx context.Context, facilityID string) ([]parking.Slot, error) {
	var out []parking.Slot
	if err := c.getJSON(ctx, "/slots/"+url.PathEscape(facilityID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Export(ctx context.Context, facilityID, format string) ([]byte, error) {
	return c.get(ctx, "/export/"+url.PathEscape(facilityID)+"?format="+url.QueryEscape(format))
}

// Watch streams snapshots of facilityID to fn until ctx ends, the server closes the
// stream, or fn returns an error. ErrStop from fn is reported as nil.
func (c *Client) Watch(ctx context.Context, facilityID string, fn func([]parking.Slot) error) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/slots/" + url.PathEscape(facilityID)

	conn, _, err := c.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		msg = bytes.TrimSpace(msg)
		if len(msg) > 0 && msg[0] == '{' {
			var e struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(msg, &e) == nil && e.Error != "" {
				return fmt.Errorf("%w: %s", catalog.ErrNotFound, facilityID)
			}
			continue
		}
		var slots []parking.Slot
		if err := json.Unmarshal(msg, &slots); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		if err := fn(slots); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	b, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, path)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("get %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	return b, nil
}

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drawguess/backend/internal/errors"
	"github.com/drawguess/backend/internal/logging"
	"github.com/drawguess/backend/internal/models"
	"github.com/drawguess/backend/internal/store"
)

const (
	realtimeTopic     = "realtime:public:" + sessionsTable
	heartbeatInterval = 30 * time.Second
)

// phoenixMessage is the framing used by the Supabase Realtime websocket.
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// changePayload carries one postgres change notification.
type changePayload struct {
	Type      string              `json:"type"`
	Record    *models.GameSession `json:"record"`
	OldRecord *models.GameSession `json:"old_record"`
}

// Changes opens the realtime subscription and delivers change events on
// the returned channel. The channel is closed when ctx is cancelled or
// the connection drops; callers resubscribe by calling Changes again.
func (c *Client) Changes(ctx context.Context) (<-chan store.ChangeEvent, error) {
	wsURL, err := c.realtimeURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRemoteUnavailable, "failed to dial realtime endpoint", err)
	}

	join := phoenixMessage{
		Topic:   realtimeTopic,
		Event:   "phx_join",
		Payload: json.RawMessage(`{}`),
		Ref:     "1",
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, errors.Wrap(errors.ErrRemoteUnavailable, "failed to join realtime channel", err)
	}

	events := make(chan store.ChangeEvent, 16)

	// Heartbeats keep the Phoenix connection alive; the server drops
	// silent clients after about a minute.
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		ref := 2
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				hb := phoenixMessage{
					Topic:   "phoenix",
					Event:   "heartbeat",
					Payload: json.RawMessage(`{}`),
					Ref:     fmt.Sprintf("%d", ref),
				}
				ref++
				if err := conn.WriteJSON(hb); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		defer close(events)
		defer conn.Close()
		for {
			var msg phoenixMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					logging.Warn("Realtime connection closed", map[string]interface{}{
						"error": err.Error(),
					})
				}
				return
			}

			event, ok := decodeChange(&msg)
			if !ok {
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	logging.Info("Realtime subscription opened", map[string]interface{}{
		"topic": realtimeTopic,
	})

	return events, nil
}

// decodeChange maps a Phoenix message onto a store.ChangeEvent.
// Join acks, heartbeat replies, and system messages are dropped.
func decodeChange(msg *phoenixMessage) (store.ChangeEvent, bool) {
	switch msg.Event {
	case "INSERT", "UPDATE", "DELETE":
	default:
		return store.ChangeEvent{}, false
	}

	var payload changePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		logging.Warn("Dropping undecodable change event", map[string]interface{}{
			"event": msg.Event,
			"error": err.Error(),
		})
		return store.ChangeEvent{}, false
	}

	return store.ChangeEvent{
		Type: store.ChangeType(msg.Event),
		New:  payload.Record,
		Old:  payload.OldRecord,
	}, true
}

func (c *Client) realtimeURL() (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", errors.Wrap(errors.ErrSyncNotConfigured, "invalid supabase URL", err)
	}
	scheme := "wss"
	if base.Scheme == "http" {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/realtime/v1/websocket?apikey=%s&vsn=1.0.0",
		scheme, base.Host, url.QueryEscape(c.config.AnonKey)), nil
}

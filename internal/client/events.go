package client

import (
	"context"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/models"
)

const eventVoiceCardCreated = "voicecard.created"

type feedEvent struct {
	Type      string            `json:"type"`
	VoiceCard *models.VoiceCard `json:"voicecard"`
}

// WatchFeed calls onCreated for every card posted while ctx is alive.
// It returns nil once ctx is cancelled.
func (c *Client) WatchFeed(ctx context.Context, onCreated func(*models.VoiceCard)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/voicecards/events"

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	cancel()
	if err != nil {
		return common.NetworkError("watch feed", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller is done
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		var evt feedEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return common.NetworkError("watch feed", err)
		}

		if evt.Type == eventVoiceCardCreated && evt.VoiceCard != nil {
			onCreated(evt.VoiceCard)
		}
	}
}

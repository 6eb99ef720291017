package portal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const pushPath = "/ws"

// Subscribe opens the push connection with the client's session cookie and
// calls handle for every frame until ctx ends or the server closes the
// connection. It returns nil when ctx ends.
func (c *Client) Subscribe(ctx context.Context, handle func(Event)) error {
	ws, resp, err := c.dialer().DialContext(ctx, c.wsURL(pushPath), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			return fmt.Errorf("portal: push handshake: %w", apiErr)
		}
		return fmt.Errorf("portal: push dial: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.timeout))
			_ = ws.Close()
		case <-stop:
		}
	}()
	defer ws.Close()

	for {
		var ev Event
		if err := ws.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("portal: push read: %w", err)
		}

		logrus.WithField("event", ev.Event).Debug("Push event received")
		handle(ev)
	}
}

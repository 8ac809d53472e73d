package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrChannelClosed = errors.New("channel closed")

const channelWriteWait = 10 * time.Second

// ChannelClient is a member connection to a room's ephemeral broadcast
// channel. Every message sent to the room, including this client's own,
// arrives on Messages stamped with a server id and timestamp.
type ChannelClient struct {
	conn *websocket.Conn
	log  *zap.Logger
	msgs chan map[string]any
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func DialChannel(ctx context.Context, url string, header http.Header, log *zap.Logger) (*ChannelClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &ChannelClient{
		conn: conn,
		log:  log,
		msgs: make(chan map[string]any, 64),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *ChannelClient) readLoop() {
	defer close(c.done)
	defer close(c.msgs)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("channel read ended", zap.Error(err))
			}
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil || msg == nil {
			continue
		}
		c.msgs <- msg
	}
}

// Messages is closed when the connection ends.
func (c *ChannelClient) Messages() <-chan map[string]any { return c.msgs }

func (c *ChannelClient) Send(msg map[string]any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close leaves the channel and waits for the reader to exit. Messages not
// yet consumed are discarded.
func (c *ChannelClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.conn.Close()
	c.mu.Unlock()

	for {
		select {
		case <-c.done:
			return
		case _, ok := <-c.msgs:
			if !ok {
				<-c.done
				return
			}
		}
	}
}

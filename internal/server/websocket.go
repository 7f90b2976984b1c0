package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

type (
	// Client represents a WebSocket connection streaming transaction events
	Client struct {
		conn      *websocket.Conn
		consumer  topic.Consumer[api.TransactionEvent]
		filter    EventFilter
		getState  StateFunc
		onClose   func(*Client)
		done      chan struct{}
		closeOnce sync.Once
	}

	// EventFilter decides whether an event is sent to a client
	EventFilter func(*api.TransactionEvent) bool

	// StateFunc retrieves the current record of a transaction
	StateFunc func(context.Context, api.TransactionID) (*api.Transaction, error)
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 1024
	wsBufferSize       = 1024
	incomingBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades an HTTP connection to WebSocket and streams the
// feed's events that match the client's subscription. Nothing is sent until
// the client subscribes. onOpen runs before streaming starts and onClose
// after the connection is gone; either may be nil
func HandleWebSocket(
	feed *store.Feed, w http.ResponseWriter, r *http.Request, st StateFunc,
	onOpen, onClose func(*Client),
) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		consumer: feed.Subscribe(),
		filter:   matchNone,
		getState: st,
		onClose:  onClose,
		done:     make(chan struct{}),
	}

	if onOpen != nil {
		onOpen(client)
	}
	go client.run()
}

func (s *Server) handleWebSocket(c *gin.Context) {
	HandleWebSocket(s.store.Events(), c.Writer, c.Request,
		s.store.Get, s.registerWebSocket, s.unregisterWebSocket,
	)
}

// Close ends the connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) run() {
	defer func() {
		c.consumer.Close()
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan []byte, incomingBufferSize)
	go c.readMessages(incoming)

	for {
		select {
		case <-c.done:
			c.sendClose()
			return

		case message, ok := <-incoming:
			if !ok {
				return
			}
			c.handleSubscribe(message)

		case event, ok := <-c.consumer.Receive():
			if !ok {
				c.sendClose()
				return
			}
			if !c.sendEventIfMatched(&event) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

func (c *Client) readMessages(incoming chan []byte) {
	defer close(incoming)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case incoming <- message:
		case <-c.done:
			return
		}
	}
}

func (c *Client) handleSubscribe(message []byte) {
	var sub api.SubscribeRequest
	if err := json.Unmarshal(message, &sub); err != nil {
		slog.Error("Failed to parse WebSocket message",
			log.Error(err))
		return
	}

	if sub.Type != api.MessageSubscribe {
		return
	}

	c.filter = BuildFilter(&sub.Data)
	c.sendSubscribeState(sub.Data.TransactionIDs)
}

func (c *Client) sendSubscribeState(ids []api.TransactionID) {
	res := api.SubscribedResult{
		Type:         api.MessageSubscribed,
		Transactions: []*api.Transaction{},
	}
	for _, id := range ids {
		tx, err := c.getState(context.Background(), id)
		if errors.Is(err, store.ErrUnknownTransaction) {
			continue
		}
		if err != nil {
			slog.Error("Failed to get state for subscription",
				log.TransactionID(id),
				log.Error(err))
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(res); err != nil {
		slog.Error("WebSocket write failed",
			slog.String("context", api.MessageSubscribed),
			log.Error(err))
	}
}

func (c *Client) sendEventIfMatched(ev *api.TransactionEvent) bool {
	if !c.filter(ev) {
		return true
	}

	msg := api.WebSocketEvent{
		Type:      api.MessageTransaction,
		Data:      *ev,
		Timestamp: ev.Timestamp.UnixMilli(),
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		slog.Error("WebSocket write failed",
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}

func (c *Client) sendClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
	)
}

// BuildFilter creates an event filter from a client subscription. Listed
// transactions and statuses must both match when both are given
func BuildFilter(sub *api.ClientSubscription) EventFilter {
	var byID EventFilter
	if len(sub.TransactionIDs) > 0 {
		ids := slices.Clone(sub.TransactionIDs)
		byID = func(ev *api.TransactionEvent) bool {
			return slices.Contains(ids, ev.TransactionID)
		}
	} else if sub.All {
		byID = matchAll
	}
	if byID == nil {
		return matchNone
	}

	if len(sub.Statuses) == 0 {
		return byID
	}
	statuses := slices.Clone(sub.Statuses)
	return func(ev *api.TransactionEvent) bool {
		return byID(ev) && slices.Contains(statuses, ev.Status)
	}
}

func matchAll(*api.TransactionEvent) bool {
	return true
}

func matchNone(*api.TransactionEvent) bool {
	return false
}

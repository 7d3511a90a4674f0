package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ephemeral_chat/internal/chat/domain"
	errprocess "ephemeral_chat/pkg/err"
	"ephemeral_chat/pkg/logger"
	"ephemeral_chat/pkg/metrics"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// ChatWebsocketHandler websocket 連線入口
type ChatWebsocketHandler struct {
	messageUC    *MessageUseCase
	pingInterval time.Duration
	sendBuffer   int
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(messageUC *MessageUseCase, pingInterval time.Duration, sendBuffer int) *ChatWebsocketHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &ChatWebsocketHandler{
		messageUC:    messageUC,
		pingInterval: pingInterval,
		sendBuffer:   sendBuffer,
	}
}

// wsConn the part of *websocket.Conn the writer needs
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsClient 單一連線, only writePump writes to conn
type wsClient struct {
	id        string
	conn      wsConn
	send      chan domain.WSResponse
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn wsConn, buffer int) *wsClient {
	return &wsClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan domain.WSResponse, buffer),
		done: make(chan struct{}),
	}
}

// ID connection id
func (c *wsClient) ID() string {
	return c.id
}

// Deliver queue msg as a "new message" event
func (c *wsClient) Deliver(msg *domain.Message) bool {
	return c.enqueue(domain.NewMessageResponse(msg))
}

// enqueue never blocks. A full buffer means the peer is not reading, so it is dropped.
func (c *wsClient) enqueue(resp domain.WSResponse) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- resp:
		return true
	default:
		logger.Log.Warn("websocket send buffer full, dropping connection", zap.String("conn", c.id))
		metrics.DroppedConnections.Inc()
		c.close()
		return false
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// writePump 負責所有寫入與定期 ping, exits when the client is closed or a write fails
func (c *wsClient) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()

	for {
		select {
		case resp := <-c.send:
			b, err := json.Marshal(resp)
			if err != nil {
				logger.Log.Errorf("websocket marshal error:", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Log.Errorf("write message error:", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				logger.Log.Errorf("Ping error:", err)
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// HandleConnection 是 WebSocket 連線的進入點, ctx is the service lifetime: cancelling it closes the connection
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	client := newWSClient(conn, h.sendBuffer)
	metrics.WebSocketConnections.Inc()
	logger.Log.Info("websocket open", zap.String("conn", client.id), zap.String("remote", conn.RemoteAddr().String()))

	pumpDone := make(chan struct{})
	go func() {
		client.writePump(h.pingInterval)
		close(pumpDone)
	}()

	// 服務關閉時送出 close frame, the read loop then ends on the closed conn
	go func() {
		select {
		case <-ctx.Done():
			client.close()
		case <-client.done:
		}
	}()

	// conn goes back to the pool when this returns, so wait for the writer first
	defer func() {
		h.messageUC.Leave(client.id)
		client.close()
		<-pumpDone
		metrics.WebSocketConnections.Dec()
		logger.Log.Info("websocket close", zap.String("conn", client.id))
	}()

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("Received PONG", zap.String("conn", client.id))
		return nil
	})

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("Connection closed", zap.String("conn", client.id))
			} else {
				//直接斷線 1006
				logger.Log.Debug("websocket read error", zap.String("conn", client.id), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			client.enqueue(domain.ErrorResponse("unsupported frame type"))
			continue
		}
		h.textMessageAction(ctx, client, message)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, client *wsClient, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Debug("json unmarshal error", zap.String("conn", client.id), zap.Error(err))
		client.enqueue(domain.ErrorResponse("Invalid message"))
		return
	}

	switch domain.Action(req.Action) {
	//加入聊天室, 回傳房間內未過期訊息
	case domain.JoinRoom:
		_, err := h.messageUC.Join(ctx, client, req.Username, req.Room, func(msgs []domain.Message) {
			client.enqueue(domain.InitMessagesResponse(req.Room, msgs))
		})
		if err != nil {
			h.replyError(client, req, err)
		}

	//message都會寫入db,並傳訊給聊天室內的人
	case domain.SendMessage:
		if _, err := h.messageUC.Send(ctx, req.Username, req.Room, req.Content); err != nil {
			h.replyError(client, req, err)
		}

	default:
		client.enqueue(domain.ErrorResponse("unknown action"))
	}
}

// replyError report err to the originating connection only
func (h *ChatWebsocketHandler) replyError(client *wsClient, req domain.WSRequest, err error) {
	errMsg := err.Error()
	if !errprocess.IsValidation(err) {
		logger.Log.Error("websocket err",
			zap.String("conn", client.id),
			zap.String("action", req.Action),
			zap.String("room", req.Room),
			zap.Error(err),
		)
		errMsg = "Failed to " + req.Action
	} else {
		var e *errprocess.Error
		if errors.As(err, &e) && e.Err != nil {
			errMsg = e.Err.Error()
		}
	}
	client.enqueue(domain.ErrorResponse(errMsg))
}

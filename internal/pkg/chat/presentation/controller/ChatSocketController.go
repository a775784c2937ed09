package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/auth"
	cacheport "github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/cache/port"
	qport "github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/queue/port"
	"github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/realtime"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/task"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/usecase"
	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	repository "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/port"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/protocol"
)

const defaultReadTimeout = 60 * time.Second

// SocketOptions pins the transport's policy decisions.
type SocketOptions struct {
	// EchoToSender controls whether the sender also receives its own
	// new_message frame in addition to the message_sent ack.
	EchoToSender bool
	// QueueOffline controls whether the send path records a durable
	// delivery-queue entry per offline participant. When false, offline
	// catch-up is the REST history API's job.
	QueueOffline bool
}

// ChatSocketController owns the websocket endpoint: credential handshake,
// frame dispatch, conversation handlers and fan-out.
type ChatSocketController struct {
	registry *realtime.Registry
	verifier *auth.Verifier
	queue    qport.Client // may be nil
	log      *slog.Logger
	opts     SocketOptions

	sendMessageUC   *usecase.SendMessageUseCase
	markReadUC      *usecase.MarkReadUseCase
	joinConvUC      *usecase.JoinConversationUseCase
	presenceUC      *usecase.PresenceUseCase
	listMembersUC   *usecase.ListParticipantsUseCase
	displayUC       *usecase.GetUserDisplayUseCase
	queueDeliverUC  *usecase.QueueDeliveryUseCase
	inflightTimeout time.Duration
}

func NewChatSocketController(
	repo repository.ChatRepository,
	cache cacheport.Cache,
	registry *realtime.Registry,
	verifier *auth.Verifier,
	queue qport.Client,
	log *slog.Logger,
	opts SocketOptions,
) *ChatSocketController {
	return &ChatSocketController{
		registry:        registry,
		verifier:        verifier,
		queue:           queue,
		log:             log,
		opts:            opts,
		sendMessageUC:   usecase.NewSendMessageUseCase(repo),
		markReadUC:      usecase.NewMarkReadUseCase(repo),
		joinConvUC:      usecase.NewJoinConversationUseCase(repo),
		presenceUC:      usecase.NewPresenceUseCase(repo),
		listMembersUC:   usecase.NewListParticipantsUseCase(repo),
		displayUC:       usecase.NewGetUserDisplayUseCase(repo, cache),
		queueDeliverUC:  usecase.NewQueueDeliveryUseCase(repo),
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The credential handshake is the gate; origin checks are handled
		// by the platform's reverse proxy.
		return true
	},
}

// Handle upgrades HTTP connections to websocket, authenticates the peer and
// processes frames until the client disconnects.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; just log and return.
			return
		}

		identity, err := ctl.verifier.Verify(bearerToken(c))
		if err != nil {
			// Never log the credential itself.
			ctl.log.Warn("websocket auth rejected", "remote", c.Request.RemoteAddr)
			deadline := time.Now().Add(time.Second)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"), deadline)
			_ = ws.Close()
			return
		}

		conn := realtime.NewConnection(identity.UserID, identity.TenantID, identity.Role, ws)
		ctl.registry.Attach(conn)
		defer func() {
			// Only the connection still registered for the user broadcasts
			// offline; a socket replaced by a reconnect stays silent.
			if ctl.registry.Detach(conn) {
				ctl.broadcastStatus(conn, "offline")
			}
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			conn.MarkAlive()
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		ctl.sendFrame(conn, protocol.TypeConnectionEstablished, protocol.ConnectionEstablished{
			UserID:    conn.UserID,
			Timestamp: time.Now(),
		})
		ctl.broadcastStatus(conn, "online")

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			ctl.dispatch(c, conn, data)
		}
	}
}

// dispatch decodes one inbound frame and routes it to its handler. Unknown
// types are logged and ignored; malformed frames answer the sender with a
// generic error and never tear down the connection.
func (ctl *ChatSocketController) dispatch(c *gin.Context, conn *realtime.Connection, data []byte) {
	frame, err := protocol.DecodeInbound(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			ctl.log.Debug("ignoring unknown frame type", "user", conn.UserID, "err", err)
			return
		}
		ctl.replyError(conn, "invalid message format")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	switch p := frame.(type) {
	case protocol.SendMessage:
		ctl.handleSendMessage(ctx, conn, p)
	case protocol.TypingStart:
		ctl.handleTyping(ctx, conn, p.ConversationID, true)
	case protocol.TypingStop:
		ctl.handleTyping(ctx, conn, p.ConversationID, false)
	case protocol.MarkRead:
		ctl.handleMarkRead(ctx, conn, p)
	case protocol.JoinConversation:
		ctl.handleJoin(ctx, conn, p)
	case protocol.Ping:
		ctl.sendFrame(conn, protocol.TypePong, protocol.Pong{Timestamp: time.Now()})
	}
}

func (ctl *ChatSocketController) handleSendMessage(ctx context.Context, conn *realtime.Connection, p protocol.SendMessage) {
	result, err := ctl.sendMessageUC.Execute(ctx, usecase.SendMessageInput{
		ConversationID: p.ConversationID,
		SenderID:       conn.UserID,
		TenantID:       conn.TenantID,
		Content:        p.Content,
		Attachments:    p.Attachments,
		ScheduledAt:    p.ScheduledAt,
	})
	if err != nil {
		ctl.handleUseCaseError(conn, err)
		return
	}

	if result.DeliveryStatus != chat.DeliveryStatusScheduled {
		ctl.fanOut(ctx, conn, *result)
	}

	ctl.sendFrame(conn, protocol.TypeMessageSent, protocol.MessageSent{
		MessageID: result.ID,
		Timestamp: time.Now(),
	})
}

// fanOut pushes a persisted message to every participant with a live
// connection. Push failures are per-recipient; one broken peer never stalls
// the rest.
func (ctl *ChatSocketController) fanOut(ctx context.Context, conn *realtime.Connection, msg chat.Message) {
	sender := chat.UserDisplay{ID: msg.SenderID}
	if d, err := ctl.displayUC.Execute(ctx, msg.SenderID); err == nil {
		sender = *d
	}

	payload, err := protocol.Marshal(protocol.TypeNewMessage, protocol.NewMessagePayload(msg, sender))
	if err != nil {
		ctl.log.Error("encode new_message", "message", msg.ID, "err", err)
		return
	}

	participants, err := ctl.listMembersUC.Execute(ctx, usecase.ListParticipantsInput{
		ConversationID: msg.ConversationID,
		TenantID:       conn.TenantID,
	})
	if err != nil {
		ctl.handleUseCaseError(conn, err)
		return
	}

	for _, userID := range participants {
		if userID == conn.UserID && !ctl.opts.EchoToSender {
			continue
		}
		if ctl.registry.NotifyUser(userID, payload) {
			continue
		}
		if userID == conn.UserID {
			continue
		}
		ctl.handleOffline(ctx, msg.ID, userID)
	}
}

// handleOffline records the durability backstop and/or best-effort
// notification for a participant without a live connection.
func (ctl *ChatSocketController) handleOffline(ctx context.Context, messageID, recipientID string) {
	if ctl.opts.QueueOffline {
		if _, err := ctl.queueDeliverUC.Execute(ctx, messageID, recipientID); err != nil {
			ctl.log.Error("queue offline delivery", "message", messageID, "recipient", recipientID, "err", err)
		}
	}
	if ctl.queue != nil {
		if err := task.EnqueueNotifyOffline(ctx, ctl.queue, messageID, recipientID); err != nil {
			ctl.log.Warn("enqueue offline notification", "message", messageID, "recipient", recipientID, "err", err)
		}
	}
}

func (ctl *ChatSocketController) handleTyping(ctx context.Context, conn *realtime.Connection, conversationID string, start bool) {
	if conversationID == "" {
		ctl.replyError(conn, "conversationId is required")
		return
	}

	participants, err := ctl.listMembersUC.Execute(ctx, usecase.ListParticipantsInput{
		ConversationID: conversationID,
		TenantID:       conn.TenantID,
	})
	if err != nil {
		ctl.handleUseCaseError(conn, err)
		return
	}
	if !contains(participants, conn.UserID) {
		ctl.replyError(conn, "not authorized for this conversation")
		return
	}

	frameType := protocol.TypeUserTyping
	if !start {
		frameType = protocol.TypeUserStoppedTyping
	}
	payload, err := protocol.Marshal(frameType, protocol.Typing{
		ConversationID: conversationID,
		UserID:         conn.UserID,
		Timestamp:      time.Now(),
	})
	if err != nil {
		ctl.log.Error("encode typing frame", "err", err)
		return
	}

	for _, userID := range participants {
		if userID == conn.UserID {
			continue
		}
		ctl.registry.NotifyUser(userID, payload)
	}
}

func (ctl *ChatSocketController) handleMarkRead(ctx context.Context, conn *realtime.Connection, p protocol.MarkRead) {
	if p.MessageID == "" {
		ctl.replyError(conn, "messageId is required")
		return
	}

	updated, err := ctl.markReadUC.Execute(ctx, usecase.MarkReadInput{
		MessageID: p.MessageID,
		ReaderID:  conn.UserID,
		TenantID:  conn.TenantID,
	})
	if err != nil {
		ctl.handleUseCaseError(conn, err)
		return
	}

	if updated.SenderID != conn.UserID {
		payload, err := protocol.Marshal(protocol.TypeMessageRead, protocol.MessageRead{
			MessageID: updated.ID,
			ReadBy:    conn.UserID,
			Timestamp: time.Now(),
		})
		if err != nil {
			ctl.log.Error("encode message_read", "err", err)
			return
		}
		ctl.registry.NotifyUser(updated.SenderID, payload)
	}
}

func (ctl *ChatSocketController) handleJoin(ctx context.Context, conn *realtime.Connection, p protocol.JoinConversation) {
	if p.ConversationID == "" {
		ctl.replyError(conn, "conversationId is required")
		return
	}

	if err := ctl.joinConvUC.Execute(ctx, usecase.JoinConversationInput{
		ConversationID: p.ConversationID,
		UserID:         conn.UserID,
		TenantID:       conn.TenantID,
	}); err != nil {
		ctl.handleUseCaseError(conn, err)
		return
	}

	conn.JoinConversation(p.ConversationID)

	payload, err := protocol.Marshal(protocol.TypeUserJoined, protocol.UserJoined{
		ConversationID: p.ConversationID,
		UserID:         conn.UserID,
		Timestamp:      time.Now(),
	})
	if err != nil {
		ctl.log.Error("encode user_joined_conversation", "err", err)
		return
	}

	participants, err := ctl.listMembersUC.Execute(ctx, usecase.ListParticipantsInput{
		ConversationID: p.ConversationID,
		TenantID:       conn.TenantID,
	})
	if err != nil {
		ctl.handleUseCaseError(conn, err)
		return
	}
	for _, userID := range participants {
		if userID == conn.UserID {
			continue
		}
		ctl.registry.NotifyUser(userID, payload)
	}
}

// broadcastStatus notifies everyone sharing a conversation with the user
// that their online/offline state changed.
func (ctl *ChatSocketController) broadcastStatus(conn *realtime.Connection, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), ctl.inflightTimeout)
	defer cancel()

	audience, err := ctl.presenceUC.Execute(ctx, usecase.PresenceInput{
		UserID:   conn.UserID,
		TenantID: conn.TenantID,
	})
	if err != nil {
		ctl.log.Error("resolve presence audience", "user", conn.UserID, "err", err)
		return
	}

	payload, err := protocol.Marshal(protocol.TypeUserStatusChanged, protocol.UserStatusChanged{
		UserID:    conn.UserID,
		Status:    status,
		Timestamp: time.Now(),
	})
	if err != nil {
		ctl.log.Error("encode user_status_changed", "err", err)
		return
	}

	for _, userID := range audience {
		ctl.registry.NotifyUser(userID, payload)
	}
}

func (ctl *ChatSocketController) handleUseCaseError(conn *realtime.Connection, err error) {
	switch {
	case errors.Is(err, chat.ErrNotParticipant):
		ctl.replyError(conn, "not authorized for this conversation")
	case errors.Is(err, chat.ErrMessageNotFound):
		ctl.replyError(conn, "message not found")
	case errors.Is(err, usecase.ErrPersistence):
		ctl.log.Error("persistence failure", "user", conn.UserID, "err", err)
		ctl.replyError(conn, "unexpected persistence error")
	default:
		ctl.replyError(conn, err.Error())
	}
}

func (ctl *ChatSocketController) replyError(conn *realtime.Connection, message string) {
	ctl.sendFrame(conn, protocol.TypeError, protocol.ErrorPayload{Message: message})
}

func (ctl *ChatSocketController) sendFrame(conn *realtime.Connection, frameType string, data any) {
	payload, err := protocol.Marshal(frameType, data)
	if err != nil {
		ctl.log.Error("encode frame", "type", frameType, "err", err)
		return
	}
	_ = conn.Send(payload)
}

// bearerToken pulls the credential from the token query parameter or the
// Authorization header.
func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

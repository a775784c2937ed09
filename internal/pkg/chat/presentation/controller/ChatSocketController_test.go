package controller

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/auth"
	"github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/realtime"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/worker"
	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/mocks"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/protocol"
)

const testSecret = "controller-test-secret"

type harness struct {
	repo     *mocks.Repo
	registry *realtime.Registry
	verifier *auth.Verifier
	srv      *httptest.Server
}

func newHarness(t *testing.T, opts SocketOptions) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		repo:     mocks.NewRepo(),
		registry: realtime.NewRegistry(),
		verifier: auth.NewVerifier(testSecret),
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctl := NewChatSocketController(h.repo, nil, h.registry, h.verifier, nil, log, opts)

	router := gin.New()
	router.GET("/api/v1/chat/ws", ctl.Handle())
	h.srv = httptest.NewServer(router)

	t.Cleanup(func() {
		h.registry.Close()
		h.srv.Close()
	})
	return h
}

func (h *harness) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/api/v1/chat/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

// dial connects as the given user and consumes the connection_established
// frame so tests start from a clean stream.
func (h *harness) dial(t *testing.T, userID, tenantID string) *websocket.Conn {
	t.Helper()
	token, err := h.verifier.Sign(auth.Identity{UserID: userID, TenantID: tenantID, Role: "employee"}, time.Minute)
	require.NoError(t, err)

	ws, resp, err := websocket.DefaultDialer.Dial(h.wsURL(token), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })

	env := readFrame(t, ws)
	require.Equal(t, protocol.TypeConnectionEstablished, env.Type)

	var established protocol.ConnectionEstablished
	require.NoError(t, json.Unmarshal(env.Data, &established))
	require.Equal(t, userID, established.UserID)
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, frameType string, data any) {
	t.Helper()
	payload, err := protocol.Marshal(frameType, data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, payload))
}

func readFrame(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// readUntil skips interleaved frames (presence updates and the like) until
// one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, frameType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env := readFrame(t, ws)
		if env.Type == frameType {
			return env.Data
		}
	}
	t.Fatalf("no %s frame arrived", frameType)
	return nil
}

func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(250*time.Millisecond)))
	_, raw, err := ws.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected frame: %s", raw)
	}
}

func TestChatSocketController_RejectsBadCredentials(t *testing.T) {
	h := newHarness(t, SocketOptions{})

	cases := map[string]string{
		"missing token": "",
		"garbage token": "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			ws, resp, err := websocket.DefaultDialer.Dial(h.wsURL(token), nil)
			require.NoError(t, err, "the upgrade itself succeeds; rejection is a close frame")
			if resp != nil {
				resp.Body.Close()
			}
			defer ws.Close()

			require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
			_, _, err = ws.ReadMessage()
			require.Error(t, err)
			assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
		})
	}
}

func TestChatSocketController_AcceptsAuthorizationHeader(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	token, err := h.verifier.Sign(auth.Identity{UserID: "u1", TenantID: "t1", Role: "admin"}, time.Minute)
	require.NoError(t, err)

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	ws, resp, err := websocket.DefaultDialer.Dial(h.wsURL(""), header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer ws.Close()

	env := readFrame(t, ws)
	assert.Equal(t, protocol.TypeConnectionEstablished, env.Type)
}

func TestChatSocketController_SendMessageFansOut(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")
	h.repo.AddUser("u1", "Sam Sender", "sam.png")
	h.repo.AddUser("u2", "Rita Receiver", "")

	sender := h.dial(t, "u1", "t1")
	receiver := h.dial(t, "u2", "t1")

	sendFrame(t, sender, protocol.TypeSendMessage, protocol.SendMessage{
		ConversationID: "c1",
		Content:        "hi there",
	})

	var out protocol.NewMessage
	require.NoError(t, json.Unmarshal(readUntil(t, receiver, protocol.TypeNewMessage), &out))
	assert.Equal(t, "hi there", out.Content)
	assert.Equal(t, "u1", out.SenderID)
	assert.Equal(t, "Sam Sender", out.SenderName)
	assert.Equal(t, chat.DeliveryStatusSent, out.DeliveryStatus)

	var ack protocol.MessageSent
	require.NoError(t, json.Unmarshal(readUntil(t, sender, protocol.TypeMessageSent), &ack))
	assert.Equal(t, out.ID, ack.MessageID)

	// Default policy: the sender gets only the ack, never the echo.
	expectSilence(t, sender)

	require.Len(t, h.repo.Messages(), 1)
}

func TestChatSocketController_EchoToSender(t *testing.T) {
	h := newHarness(t, SocketOptions{EchoToSender: true})
	h.repo.AddConversation("c1", "t1", "u1", "u2")
	h.repo.AddUser("u1", "Sam Sender", "")

	sender := h.dial(t, "u1", "t1")
	sendFrame(t, sender, protocol.TypeSendMessage, protocol.SendMessage{
		ConversationID: "c1",
		Content:        "echo me",
	})

	var out protocol.NewMessage
	require.NoError(t, json.Unmarshal(readUntil(t, sender, protocol.TypeNewMessage), &out))
	assert.Equal(t, "echo me", out.Content)
}

func TestChatSocketController_SendToForeignConversationFails(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")

	intruder := h.dial(t, "u3", "t1")
	sendFrame(t, intruder, protocol.TypeSendMessage, protocol.SendMessage{
		ConversationID: "c1",
		Content:        "let me in",
	})

	var e protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, intruder, protocol.TypeError), &e))
	assert.Equal(t, "not authorized for this conversation", e.Message)
	assert.Empty(t, h.repo.Messages(), "rejected sends are never persisted")
}

func TestChatSocketController_ScheduledMessageSkipsFanOut(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")
	h.repo.AddUser("u1", "Sam Sender", "")

	sender := h.dial(t, "u1", "t1")
	receiver := h.dial(t, "u2", "t1")

	at := time.Now().Add(time.Hour)
	sendFrame(t, sender, protocol.TypeSendMessage, protocol.SendMessage{
		ConversationID: "c1",
		Content:        "later",
		ScheduledAt:    &at,
	})

	var ack protocol.MessageSent
	require.NoError(t, json.Unmarshal(readUntil(t, sender, protocol.TypeMessageSent), &ack))
	assert.Equal(t, chat.DeliveryStatusScheduled, h.repo.Message(ack.MessageID).DeliveryStatus)
	expectSilence(t, receiver)
}

func TestChatSocketController_QueueOfflineRecordsDelivery(t *testing.T) {
	h := newHarness(t, SocketOptions{QueueOffline: true})
	h.repo.AddConversation("c1", "t1", "u1", "u2")
	h.repo.AddUser("u1", "Sam Sender", "")

	sender := h.dial(t, "u1", "t1") // u2 never connects

	sendFrame(t, sender, protocol.TypeSendMessage, protocol.SendMessage{
		ConversationID: "c1",
		Content:        "catch up later",
	})
	readUntil(t, sender, protocol.TypeMessageSent)

	entries := h.repo.QueueEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "u2", entries[0].RecipientID)
	assert.Equal(t, chat.QueueStatusPending, entries[0].Status)
}

func TestChatSocketController_OfflineParticipantsSkippedByDefault(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")
	h.repo.AddUser("u1", "Sam Sender", "")

	sender := h.dial(t, "u1", "t1")
	sendFrame(t, sender, protocol.TypeSendMessage, protocol.SendMessage{
		ConversationID: "c1",
		Content:        "nobody home",
	})
	readUntil(t, sender, protocol.TypeMessageSent)

	assert.Empty(t, h.repo.QueueEntries())
}

func TestChatSocketController_TypingIndicators(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")

	typer := h.dial(t, "u1", "t1")
	watcher := h.dial(t, "u2", "t1")

	sendFrame(t, typer, protocol.TypeTypingStart, protocol.TypingStart{ConversationID: "c1"})
	var typing protocol.Typing
	require.NoError(t, json.Unmarshal(readUntil(t, watcher, protocol.TypeUserTyping), &typing))
	assert.Equal(t, "u1", typing.UserID)
	assert.Equal(t, "c1", typing.ConversationID)

	sendFrame(t, typer, protocol.TypeTypingStop, protocol.TypingStop{ConversationID: "c1"})
	readUntil(t, watcher, protocol.TypeUserStoppedTyping)

	// Typing is ephemeral: nothing is persisted.
	assert.Empty(t, h.repo.Messages())
}

func TestChatSocketController_MarkReadNotifiesSender(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")
	content := "read me"
	msgID := h.repo.AddMessage(chat.Message{
		ConversationID: "c1",
		SenderID:       "u1",
		TenantID:       "t1",
		Content:        &content,
		DeliveryStatus: chat.DeliveryStatusSent,
	})

	sender := h.dial(t, "u1", "t1")
	reader := h.dial(t, "u2", "t1")

	sendFrame(t, reader, protocol.TypeMarkRead, protocol.MarkRead{MessageID: msgID})

	var read protocol.MessageRead
	require.NoError(t, json.Unmarshal(readUntil(t, sender, protocol.TypeMessageRead), &read))
	assert.Equal(t, msgID, read.MessageID)
	assert.Equal(t, "u2", read.ReadBy)
	assert.True(t, h.repo.Message(msgID).IsRead)
}

func TestChatSocketController_MarkReadUnknownMessage(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")

	reader := h.dial(t, "u2", "t1")
	sendFrame(t, reader, protocol.TypeMarkRead, protocol.MarkRead{MessageID: "ghost"})

	var e protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, reader, protocol.TypeError), &e))
	assert.Equal(t, "message not found", e.Message)
}

func TestChatSocketController_JoinConversationBroadcasts(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")

	joiner := h.dial(t, "u1", "t1")
	member := h.dial(t, "u2", "t1")

	sendFrame(t, joiner, protocol.TypeJoinConversation, protocol.JoinConversation{ConversationID: "c1"})

	var joined protocol.UserJoined
	require.NoError(t, json.Unmarshal(readUntil(t, member, protocol.TypeUserJoined), &joined))
	assert.Equal(t, "u1", joined.UserID)
	assert.Equal(t, "c1", joined.ConversationID)
}

func TestChatSocketController_PresenceBroadcasts(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")

	watcher := h.dial(t, "u1", "t1")
	peer := h.dial(t, "u2", "t1")

	var status protocol.UserStatusChanged
	require.NoError(t, json.Unmarshal(readUntil(t, watcher, protocol.TypeUserStatusChanged), &status))
	assert.Equal(t, "u2", status.UserID)
	assert.Equal(t, "online", status.Status)

	require.NoError(t, peer.Close())

	require.NoError(t, json.Unmarshal(readUntil(t, watcher, protocol.TypeUserStatusChanged), &status))
	assert.Equal(t, "u2", status.UserID)
	assert.Equal(t, "offline", status.Status)
}

func TestChatSocketController_HeartbeatEvictionBroadcastsOfflineOnce(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")

	watcher := h.dial(t, "u1", "t1")
	victim := h.dial(t, "u2", "t1")

	var status protocol.UserStatusChanged
	require.NoError(t, json.Unmarshal(readUntil(t, watcher, protocol.TypeUserStatusChanged), &status))
	require.Equal(t, "online", status.Status)

	// The victim swallows probes instead of answering them.
	victim.SetPingHandler(func(string) error { return nil })

	sweep := worker.NewHeartbeatWorker(h.registry, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// First sweep flags both connections and probes them; only the
	// watcher's pong comes back.
	sweep.Sweep()
	watcherConn, ok := h.registry.Get("u1")
	require.True(t, ok)
	watcherConn.MarkAlive()

	// Second sweep terminates the silent victim. Teardown runs the normal
	// disconnect path in the read loop.
	sweep.Sweep()

	require.NoError(t, victim.SetReadDeadline(time.Now().Add(2*time.Second)))
	var readErr error
	for readErr == nil {
		_, _, readErr = victim.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(readErr, websocket.CloseGoingAway), "got %v", readErr)

	assert.Eventually(t, func() bool { return !h.registry.IsOnline("u2") }, time.Second, 5*time.Millisecond)

	// Exactly one offline broadcast reaches the watcher.
	require.NoError(t, json.Unmarshal(readUntil(t, watcher, protocol.TypeUserStatusChanged), &status))
	assert.Equal(t, "u2", status.UserID)
	assert.Equal(t, "offline", status.Status)
	expectSilence(t, watcher)
}

func TestChatSocketController_PingPong(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	ws := h.dial(t, "u1", "t1")

	sendFrame(t, ws, protocol.TypePing, protocol.Ping{})
	var pong protocol.Pong
	require.NoError(t, json.Unmarshal(readUntil(t, ws, protocol.TypePong), &pong))
	assert.False(t, pong.Timestamp.IsZero())
}

func TestChatSocketController_UnknownFrameTypeIgnored(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	ws := h.dial(t, "u1", "t1")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"time_travel","data":{}}`)))
	sendFrame(t, ws, protocol.TypePing, protocol.Ping{})

	// The unknown frame produces neither an error nor a disconnect; the
	// ping right behind it is answered.
	env := readFrame(t, ws)
	assert.Equal(t, protocol.TypePong, env.Type)
}

func TestChatSocketController_MalformedFrameAnswersError(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	ws := h.dial(t, "u1", "t1")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{not json`)))

	var e protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, ws, protocol.TypeError), &e))
	assert.Equal(t, "invalid message format", e.Message)

	// The connection survives.
	sendFrame(t, ws, protocol.TypePing, protocol.Ping{})
	readUntil(t, ws, protocol.TypePong)
}

func TestChatSocketController_ReconnectReplacesSession(t *testing.T) {
	h := newHarness(t, SocketOptions{})
	h.repo.AddConversation("c1", "t1", "u1", "u2")

	watcher := h.dial(t, "u2", "t1")
	first := h.dial(t, "u1", "t1")
	readUntil(t, watcher, protocol.TypeUserStatusChanged) // u1 online

	second := h.dial(t, "u1", "t1")

	// The replaced socket is closed with the session-replaced code.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := first.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, 4001), "got %v", err)
			break
		}
	}

	// The replacement stays usable and no offline broadcast leaked from the
	// replaced socket's teardown. The next status frame the watcher sees is
	// the reconnect's online, not an offline.
	var status protocol.UserStatusChanged
	require.NoError(t, json.Unmarshal(readUntil(t, watcher, protocol.TypeUserStatusChanged), &status))
	assert.Equal(t, "u1", status.UserID)
	assert.Equal(t, "online", status.Status)

	sendFrame(t, second, protocol.TypeSendMessage, protocol.SendMessage{ConversationID: "c1", Content: "still here"})
	readUntil(t, second, protocol.TypeMessageSent)
}

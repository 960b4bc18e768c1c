package server_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/omochice/framechat/internal/auth"
	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/presence"
	"github.com/omochice/framechat/internal/room"
	"github.com/omochice/framechat/internal/router"
	"github.com/omochice/framechat/internal/server"
	"github.com/omochice/framechat/internal/transport/ws"
	"github.com/omochice/framechat/pkg/protocol"
)

type stack struct {
	srv    *server.UnifiedServer
	codec  *protocol.Codec
	tokens *auth.JWTManager
}

func newStack(t *testing.T) *stack {
	t.Helper()
	codec := protocol.NewCodec(nil)
	engine := presence.NewEngine(presence.Config{Timeout: time.Minute})
	tokens := auth.NewJWTManager(auth.Config{Secret: "0123456789abcdef0123456789abcdef", TokenTTL: time.Hour})
	rt := router.New(router.Deps{
		Codec:    codec,
		Presence: engine,
		Rooms:    room.NewRegistry(room.NewMemoryStore(), 8),
		Auth:     tokens,
	})
	hub := chat.NewHub(codec, rt, chat.HubConfig{WriteTimeout: time.Second})

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.Handler(hub))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	srv := server.NewUnifiedServer("127.0.0.1:0", hub, mux)
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		hub.Shutdown(sctx)
		cancel()
		<-done
	})
	return &stack{srv: srv, codec: codec, tokens: tokens}
}

// peer is a test client speaking frames over either transport.
type peer struct {
	t      *testing.T
	codec  *protocol.Codec
	stream *protocol.Stream
	read   func(ctx context.Context) ([]byte, error)
	write  func(ctx context.Context, frame []byte) error
	close  func()
}

func (st *stack) dialTCP(t *testing.T) *peer {
	conn, err := net.Dial("tcp", st.srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4096)
	p := &peer{
		t:      t,
		codec:  st.codec,
		stream: protocol.NewStream(st.codec),
		read: func(ctx context.Context) ([]byte, error) {
			dl, _ := ctx.Deadline()
			conn.SetReadDeadline(dl)
			n, err := conn.Read(buf)
			return buf[:n], err
		},
		write: func(_ context.Context, frame []byte) error {
			_, err := conn.Write(frame)
			return err
		},
		close: func() { conn.Close() },
	}
	t.Cleanup(p.close)
	return p
}

func (st *stack) dialWS(t *testing.T) *peer {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+st.srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	p := &peer{
		t:      t,
		codec:  st.codec,
		stream: protocol.NewStream(st.codec),
		read: func(ctx context.Context) ([]byte, error) {
			_, data, err := conn.Read(ctx)
			return data, err
		},
		write: func(ctx context.Context, frame []byte) error {
			return conn.Write(ctx, websocket.MessageBinary, frame)
		},
		close: func() { conn.Close(websocket.StatusNormalClosure, "") },
	}
	t.Cleanup(p.close)
	return p
}

func (p *peer) send(t protocol.MessageType, payload any) {
	p.t.Helper()
	msg := protocol.NewMessage(t, payload)
	msg.RequestID = uuid.NewString()
	frame, err := p.codec.Encode(msg)
	if err != nil {
		p.t.Fatal(err)
	}
	if err := p.write(context.Background(), frame); err != nil {
		p.t.Fatalf("write: %v", err)
	}
}

// next returns the next message or nil when none arrives within wait.
func (p *peer) next(wait time.Duration) *protocol.Message {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	for {
		msg, err := p.stream.Next()
		if err == nil {
			return msg
		}
		if !errors.Is(err, protocol.ErrNeedMoreData) {
			p.t.Fatalf("decode: %v", err)
		}
		data, err := p.read(ctx)
		if len(data) > 0 {
			p.stream.Feed(data)
			continue
		}
		if err != nil {
			if ctx.Err() != nil || isTimeout(err) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			p.t.Fatalf("read: %v", err)
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (p *peer) expect(t protocol.MessageType) *protocol.Message {
	p.t.Helper()
	msg := p.next(2 * time.Second)
	if msg == nil {
		p.t.Fatalf("timed out waiting for %v", t)
	}
	if msg.Type != t {
		p.t.Fatalf("got %v (%+v), want %v", msg.Type, msg.Payload, t)
	}
	return msg
}

func (p *peer) expectNothing() {
	p.t.Helper()
	if msg := p.next(200 * time.Millisecond); msg != nil {
		p.t.Fatalf("unexpected %v: %+v", msg.Type, msg.Payload)
	}
}

func (p *peer) login(tokens *auth.JWTManager, uid, name string) {
	p.t.Helper()
	token, err := tokens.Issue(uid, name)
	if err != nil {
		p.t.Fatal(err)
	}
	p.send(protocol.TypeLoginRequest, &protocol.LoginRequest{Token: token})
	p.expect(protocol.TypeLoginResponse)
}

func runRoomScenario(t *testing.T, st *stack, a, b *peer) {
	a.login(st.tokens, "A", "alice")
	b.login(st.tokens, "B", "bob")

	a.send(protocol.TypeRoomCreate, &protocol.RoomRequest{RoomID: "R"})
	a.expect(protocol.TypeRoomResponse)
	b.send(protocol.TypeRoomJoin, &protocol.RoomRequest{RoomID: "R"})
	b.expect(protocol.TypeRoomResponse)
	a.expect(protocol.TypeSystem)

	a.send(protocol.TypeChatRequest, &protocol.ChatRequest{Content: "hello", RoomID: "R"})
	a.expect(protocol.TypeChatResponse)

	got := b.expect(protocol.TypeNewMessage).Payload.(*protocol.ChatDelivery)
	if got.Content != "hello" || got.SenderID != "A" || got.RoomID != "R" {
		t.Errorf("NEW_MESSAGE = %+v", got)
	}
	b.expectNothing()
	a.expectNothing()
}

func TestServer_TCPRoomChat(t *testing.T) {
	st := newStack(t)
	runRoomScenario(t, st, st.dialTCP(t), st.dialTCP(t))
}

func TestServer_MixedTransports(t *testing.T) {
	st := newStack(t)
	runRoomScenario(t, st, st.dialTCP(t), st.dialWS(t))
}

func TestServer_HTTPOnSamePort(t *testing.T) {
	st := newStack(t)
	resp, err := http.Get("http://" + st.srv.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("GET /healthz = %d %q", resp.StatusCode, body)
	}
}

func TestServer_ProtocolErrorClosesConnection(t *testing.T) {
	st := newStack(t)
	p := st.dialTCP(t)
	garbage := make([]byte, protocol.HeaderSize)
	copy(garbage, "\x00\x01\x02\x03")
	if err := p.write(context.Background(), garbage); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, err := p.read(ctx)
		if err == nil {
			continue
		}
		if isTimeout(err) {
			t.Fatal("connection still open after a bad magic")
		}
		return
	}
}

func TestServer_LogoutClosesConnection(t *testing.T) {
	st := newStack(t)
	p := st.dialTCP(t)
	p.login(st.tokens, "A", "alice")
	p.send(protocol.TypeLogoutRequest, &protocol.LogoutRequest{})
	p.expect(protocol.TypeLogoutResponse)
	if msg := p.next(time.Second); msg != nil {
		t.Errorf("unexpected %v after logout", msg.Type)
	}
}

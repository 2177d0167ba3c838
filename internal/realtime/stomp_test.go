package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/notifysync/internal/devserver"
	"github.com/nao1215/notifysync/internal/realtime"
	"github.com/nao1215/notifysync/pkg/auth"
	"github.com/nao1215/notifysync/pkg/event"
)

// startBroker はテスト用のブローカーを起動し、WebSocket URLを返す。
func startBroker(t *testing.T) (*devserver.Broker, string) {
	t.Helper()

	b := devserver.NewBroker(nil)
	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})
	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitSubscribers(t *testing.T, b *devserver.Broker, topic string, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for b.Subscribers(topic) != want {
		if time.Now().After(deadline) {
			t.Fatalf("Subscribers(%s) = %d, want %d", topic, b.Subscribers(topic), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketTransport_Subscribe(t *testing.T) {
	t.Parallel()

	b, url := startBroker(t)
	transport := realtime.NewWebSocketTransport(url, realtime.WithConnectTimeout(5*time.Second))

	conn, err := transport.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	received := make(chan []byte, 1)
	if err := conn.Subscribe("/topic/user/1", func(body []byte) { received <- body }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	waitSubscribers(t, b, "/topic/user/1", 1)

	if n := b.Publish("/topic/user/1", []byte(`{"message":"hi"}`)); n != 1 {
		t.Fatalf("Publish() = %d, want 1", n)
	}
	select {
	case body := <-received:
		if string(body) != `{"message":"hi"}` {
			t.Errorf("body = %s, want %s", body, `{"message":"hi"}`)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("メッセージを受信できませんでした")
	}
}

func TestWebSocketTransport_ServerClose(t *testing.T) {
	t.Parallel()

	b, url := startBroker(t)
	conn, err := realtime.NewWebSocketTransport(url).Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	b.Close()
	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("切断を検知できませんでした")
	}
	if conn.Err() == nil {
		t.Error("Err() = nil, want error")
	}
	if err := conn.Subscribe("/topic/user/1", func([]byte) {}); err == nil {
		t.Error("切断後の Subscribe() error = nil, want error")
	}
}

func TestWebSocketTransport_OpenFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	tests := []struct {
		name string
		url  string
	}{
		{"WebSocketでないエンドポイント", "ws" + strings.TrimPrefix(srv.URL, "http")},
		{"接続できないアドレス", "ws://127.0.0.1:1/ws/websocket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := realtime.NewWebSocketTransport(tt.url).Open(context.Background()); err == nil {
				t.Error("Open() error = nil, want error")
			}
		})
	}
}

// countingHandler はプッシュの受信回数を数える。
type countingHandler struct {
	mu       sync.Mutex
	messages []string
	arrived  chan struct{}
}

func (h *countingHandler) OnPush(_ context.Context, ev event.Pushed) error {
	h.mu.Lock()
	h.messages = append(h.messages, ev.Message)
	h.mu.Unlock()
	h.arrived <- struct{}{}
	return nil
}

func TestChannel_OverWebSocket(t *testing.T) {
	t.Parallel()

	b, url := startBroker(t)
	handler := &countingHandler{arrived: make(chan struct{}, 64)}
	ch := realtime.NewChannel(realtime.NewWebSocketTransport(url), handler, nil, realtime.Sinks{}, nil)
	t.Cleanup(func() { _ = ch.Close() })
	ctx := context.Background()
	session := auth.Session{UserID: 1, Role: auth.RolePatient}

	// 同じセッションで2回接続しても購読は1つだけ
	if err := ch.Connect(ctx, session); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := ch.Connect(ctx, session); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	topic := realtime.Topic(1)
	waitSubscribers(t, b, topic, 1)

	// 以前の接続の登録解除を待たずに配信するため、受信できるまで送り直す
	deadline := time.Now().Add(5 * time.Second)
	for i := 0; ; i++ {
		b.Publish(topic, []byte(`{"message":"push-`+strconv.Itoa(i)+`","type":"ONE_WAY"}`))
		select {
		case <-handler.arrived:
		case <-time.After(100 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("プッシュを受信できませんでした")
			}
			continue
		}
		break
	}
	time.Sleep(100 * time.Millisecond)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	seen := make(map[string]int)
	for _, m := range handler.messages {
		seen[m]++
		if seen[m] > 1 {
			t.Errorf("プッシュ %q が重複して配信されました", m)
		}
	}
}

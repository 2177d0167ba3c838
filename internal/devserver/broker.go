package devserver

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Broker はWebSocket上のSTOMPでトピックへの配信を行う簡易ブローカー。
// サーバーからの配信専用で、クライアントからのSENDは受け付けない。
type Broker struct {
	// upgrader はHTTP接続をWebSocketに切り替える。
	upgrader websocket.Upgrader
	// logger はログ出力先。
	logger *zap.Logger

	// mu は以下のフィールドを保護する。
	mu sync.Mutex
	// conns は接続中のクライアント。
	conns map[*brokerConn]struct{}
	// closed はClose済みかどうか。
	closed bool
}

// brokerConn はブローカーに接続した1クライアント。
type brokerConn struct {
	// ws は下位のWebSocket接続。
	ws *websocket.Conn
	// writeMu は書き込みを直列化する。
	writeMu sync.Mutex
	// subs は購読IDごとの宛先。Brokerのmuで保護する。
	subs map[string]string
}

// NewBroker は新しいBrokerを生成する。
func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"v12.stomp", "v11.stomp", "v10.stomp"},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[*brokerConn]struct{}),
	}
}

// ServeHTTP はWebSocket接続を受け付け、切断までフレームを処理する。
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := &brokerConn{ws: ws, subs: make(map[string]string)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ws.Close()
		return
	}
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if !b.handle(conn, msg) {
			return
		}
	}
}

// handle は受信メッセージ内のフレームを処理する。falseで接続を終了する。
func (b *Broker) handle(conn *brokerConn, msg []byte) bool {
	r := frame.NewReader(bytes.NewReader(msg))
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			b.sendError(conn, "フレームを解析できません")
			return false
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case frame.CONNECT, frame.STOMP:
			connected := frame.New(frame.CONNECTED,
				"version", "1.2",
				"heart-beat", "0,0",
				"server", "notifysync-devserver",
			)
			if err := conn.write(connected); err != nil {
				return false
			}
		case frame.SUBSCRIBE:
			id, dest := f.Header.Get("id"), f.Header.Get("destination")
			if id == "" || dest == "" {
				b.sendError(conn, "SUBSCRIBEにはidとdestinationが必要です")
				return false
			}
			b.mu.Lock()
			conn.subs[id] = dest
			b.mu.Unlock()
			b.logger.Debug("subscribed", zap.String("destination", dest), zap.String("id", id))
		case frame.UNSUBSCRIBE:
			b.mu.Lock()
			delete(conn.subs, f.Header.Get("id"))
			b.mu.Unlock()
		case frame.DISCONNECT:
			if receipt := f.Header.Get("receipt"); receipt != "" {
				_ = conn.write(frame.New(frame.RECEIPT, "receipt-id", receipt))
			}
			return false
		default:
			b.sendError(conn, "未対応のコマンドです: "+f.Command)
			return false
		}
	}
}

// sendError はERRORフレームを送る。
func (b *Broker) sendError(conn *brokerConn, message string) {
	if err := conn.write(frame.New(frame.ERROR, "message", message)); err != nil {
		b.logger.Debug("failed to send error frame", zap.Error(err))
	}
}

// write はフレームを1つのテキストメッセージとして送信する。
func (c *brokerConn) write(f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, buf.Bytes())
}

// delivery は配信先の接続と購読ID。
type delivery struct {
	conn  *brokerConn
	subID string
}

// Publish は宛先を購読しているすべてのクライアントに本文を配信し、配信数を返す。
func (b *Broker) Publish(destination string, body []byte) int {
	b.mu.Lock()
	var targets []delivery
	for conn := range b.conns {
		for id, dest := range conn.subs {
			if dest == destination {
				targets = append(targets, delivery{conn: conn, subID: id})
			}
		}
	}
	b.mu.Unlock()

	sent := 0
	for _, d := range targets {
		msg := frame.New(frame.MESSAGE,
			"destination", destination,
			"subscription", d.subID,
			"message-id", uuid.NewString(),
			"content-type", "application/json",
			"content-length", strconv.Itoa(len(body)),
		)
		msg.Body = body
		if err := d.conn.write(msg); err != nil {
			b.logger.Warn("delivery failed", zap.String("destination", destination), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Subscribers は宛先の購読数を返す。
func (b *Broker) Subscribers(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for conn := range b.conns {
		for _, dest := range conn.subs {
			if dest == destination {
				n++
			}
		}
	}
	return n
}

// Close はすべての接続を閉じ、以後の接続を拒否する。
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	conns := make([]*brokerConn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		_ = conn.ws.Close()
	}
}

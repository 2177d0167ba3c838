package realtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrStompError はサーバーからERRORフレームを受け取ったことを表す。
var ErrStompError = errors.New("STOMP ERRORフレームを受信しました")

// ErrClosed は閉じた接続を操作したことを表す。
var ErrClosed = errors.New("接続は閉じられています")

// defaultConnectTimeout はCONNECTEDフレームを待つ既定の時間。
const defaultConnectTimeout = 10 * time.Second

// WebSocketTransport はWebSocket上のSTOMP 1.2で接続するTransport。
// SockJSエンドポイントの生WebSocket（/ws/websocket）に接続する。
type WebSocketTransport struct {
	// url は接続先のWebSocket URL。
	url string
	// dialer はWebSocketのダイアラー。
	dialer *websocket.Dialer
	// connectTimeout はCONNECTEDフレームを待つ時間。
	connectTimeout time.Duration
	// logger はログ出力先。
	logger *zap.Logger
}

// TransportOption はWebSocketTransportの設定を変更する。
type TransportOption func(*WebSocketTransport)

// WithConnectTimeout はCONNECTEDフレームを待つ時間を設定する。
func WithConnectTimeout(d time.Duration) TransportOption {
	return func(t *WebSocketTransport) { t.connectTimeout = d }
}

// WithTransportLogger はロガーを設定する。
func WithTransportLogger(l *zap.Logger) TransportOption {
	return func(t *WebSocketTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewWebSocketTransport は新しいWebSocketTransportを生成する。
func NewWebSocketTransport(wsURL string, opts ...TransportOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url: wsURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultConnectTimeout,
			Subprotocols:     []string{"v12.stomp"},
		},
		connectTimeout: defaultConnectTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open はWebSocketで接続し、CONNECTEDフレームを受け取るまで待つ。
func (t *WebSocketTransport) Open(ctx context.Context) (Conn, error) {
	u, err := url.Parse(t.url)
	if err != nil {
		return nil, fmt.Errorf("WebSocket URLが不正です: %w", err)
	}

	ws, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocketのハンドシェイクに失敗 (status=%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocketの接続に失敗: %w", err)
	}

	c := &stompConn{
		ws:     ws,
		subs:   make(map[string]func([]byte)),
		done:   make(chan struct{}),
		logger: t.logger,
	}

	connect := frame.New(frame.CONNECT,
		"accept-version", "1.2",
		"host", u.Hostname(),
		"heart-beat", "0,0",
	)
	if err := c.write(connect); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("CONNECTフレームの送信に失敗: %w", err)
	}

	deadline := time.Now().Add(t.connectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.awaitConnected(deadline); err != nil {
		_ = ws.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// stompConn はWebSocket上のSTOMP接続。
type stompConn struct {
	// ws は下位のWebSocket接続。
	ws *websocket.Conn
	// writeMu は書き込みを直列化する。
	writeMu sync.Mutex
	// mu は購読情報を保護する。
	mu sync.Mutex
	// subs は購読IDごとのハンドラー。
	subs map[string]func([]byte)
	// nextID は次の購読ID。
	nextID int
	// done は接続終了時に閉じられる。
	done chan struct{}
	// err は接続終了の原因。
	err error
	// finishOnce はdoneを一度だけ閉じるために使う。
	finishOnce sync.Once
	// logger はログ出力先。
	logger *zap.Logger
}

// write はフレームを1つのテキストメッセージとして送信する。
func (c *stompConn) write(f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return fmt.Errorf("フレームのエンコードに失敗: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, buf.Bytes())
}

// awaitConnected はCONNECTEDフレームを待つ。
func (c *stompConn) awaitConnected(deadline time.Time) error {
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("読み込み期限の設定に失敗: %w", err)
	}
	defer c.ws.SetReadDeadline(time.Time{}) //nolint:errcheck

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("CONNECTEDフレームの受信に失敗: %w", err)
		}
		frames, err := parseFrames(msg)
		if err != nil {
			return err
		}
		for _, f := range frames {
			switch f.Command {
			case frame.CONNECTED:
				c.logger.Debug("stomp connected", zap.String("version", f.Header.Get("version")))
				return nil
			case frame.ERROR:
				return fmt.Errorf("%w: %s", ErrStompError, f.Header.Get("message"))
			}
		}
	}
}

// parseFrames は1メッセージに含まれるフレームをすべて読み出す。
// ハートビートの改行は読み飛ばす。
func parseFrames(msg []byte) ([]*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(msg))
	var frames []*frame.Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("STOMPフレームの解析に失敗: %w", err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
}

// Subscribe はトピックを購読する。
func (c *stompConn) Subscribe(topic string, handler func([]byte)) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	id := "sub-" + strconv.Itoa(c.nextID)
	c.nextID++
	c.subs[id] = handler
	c.mu.Unlock()

	sub := frame.New(frame.SUBSCRIBE,
		"id", id,
		"destination", topic,
		"ack", "auto",
	)
	if err := c.write(sub); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return fmt.Errorf("SUBSCRIBEフレームの送信に失敗: %w", err)
	}
	return nil
}

// readLoop はメッセージを受信してハンドラーに渡す。
func (c *stompConn) readLoop() {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			}
			c.finish(err)
			return
		}

		frames, err := parseFrames(msg)
		if err != nil {
			c.logger.Warn("malformed stomp message", zap.Error(err))
		}
		for _, f := range frames {
			switch f.Command {
			case frame.MESSAGE:
				c.mu.Lock()
				handler := c.subs[f.Header.Get("subscription")]
				c.mu.Unlock()
				if handler == nil {
					c.logger.Debug("message for unknown subscription", zap.String("subscription", f.Header.Get("subscription")))
					continue
				}
				handler(f.Body)
			case frame.ERROR:
				c.finish(fmt.Errorf("%w: %s", ErrStompError, f.Header.Get("message")))
				_ = c.ws.Close()
				return
			}
		}
	}
}

// finish は接続終了を記録する。最初の呼び出しだけが有効。
func (c *stompConn) finish(err error) {
	c.finishOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done は接続終了時に閉じられるチャネルを返す。
func (c *stompConn) Done() <-chan struct{} {
	return c.done
}

// Err は接続終了の原因を返す。Doneが閉じる前はnil。
func (c *stompConn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close はDISCONNECTを送ってから接続を閉じる。
func (c *stompConn) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	c.finish(ErrClosed)

	_ = c.write(frame.New(frame.DISCONNECT))
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

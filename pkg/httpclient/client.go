package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/notifysync/pkg/auth"
	"github.com/nao1215/notifysync/pkg/event"
)

// maxBodySize はレスポンス本文として読み込む最大バイト数。
const maxBodySize = 10 << 20

// SessionSource は現在のセッションを返す。
type SessionSource interface {
	Current() auth.Session
}

// Sinks は失敗時の通知先。
type Sinks struct {
	// Notify はトースト表示。isErrorがtrueの場合はエラー表示。
	Notify func(message string, isError bool)
	// LogError はエラーログの出力先。nilの場合はClientのロガーに出力する。
	LogError func(err error)
}

// Client は通知サービス用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は通知サービスのベースURL（例: "http://localhost:8080/notifications"）。
	baseURL string
	// sessions は現在のセッションの取得元。
	sessions SessionSource
	// credentials はセッションからトークンを生成する。
	credentials auth.Builder
	// sinks は失敗時の通知先。
	sinks Sinks
	// logger はリクエストログの出力先。
	logger *zap.Logger
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithTimeout はリクエストのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient は内部で使用するHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSinks は失敗時の通知先を設定する。
func WithSinks(s Sinks) Option {
	return func(c *Client) { c.sinks = s }
}

// WithLogger はロガーを設定する。
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New は新しいクライアントを生成する。
// タイムアウトはデフォルトで30秒。
func New(baseURL string, sessions SessionSource, credentials auth.Builder, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     baseURL,
		sessions:    sessions,
		credentials: credentials,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response は成功レスポンス。
// 本文はJSONの場合も確認メッセージのようなプレーンテキストの場合もある。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// body はレスポンス本文。
	body []byte
}

// NewResponse は成功レスポンスを生成する。
func NewResponse(statusCode int, body []byte) *Response {
	return &Response{StatusCode: statusCode, body: body}
}

// JSON は本文がJSONドキュメントかどうかを返す。
func (r *Response) JSON() bool {
	trimmed := bytes.TrimSpace(r.body)
	return len(trimmed) > 0 && json.Valid(trimmed)
}

// Text は本文を文字列として返す。
func (r *Response) Text() string {
	return string(r.body)
}

// Bytes は本文を返す。
func (r *Response) Bytes() []byte {
	return r.body
}

// Decode は本文をvにデシリアライズする。
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
	}
	return nil
}

// Do は認証付きリクエストを送信する。
// 失敗時はログとトーストに通知してから*Errorを返す。
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	return c.do(ctx, method, path, body, true)
}

// DoAnonymous はAuthorizationヘッダーを付けずにリクエストを送信する。
// 認証エラーの挙動を確認するために使う。
func (c *Client) DoAnonymous(ctx context.Context, method, path string, body any) (*Response, error) {
	return c.do(ctx, method, path, body, false)
}

// Get は指定パスにGETリクエストを送信する。
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post は指定パスにJSONボディでPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Delete は指定パスにDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// do はリクエスト送信の共通処理。
func (c *Client) do(ctx context.Context, method, path string, body any, withAuth bool) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, c.fail(fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, c.fail(fmt.Errorf("HTTPリクエストの作成に失敗: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	if withAuth {
		token, err := c.credentials.Build(c.sessions.Current())
		if err != nil {
			return nil, c.fail(fmt.Errorf("認証トークンの生成に失敗: %w", err))
		}
		req.Header.Set("Authorization", auth.Bearer(token))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(&Error{Cause: CauseNetwork, Method: method, Path: path, Err: err})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, c.fail(&Error{Cause: CauseNetwork, StatusCode: resp.StatusCode, Method: method, Path: path, Err: err})
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.fail(classify(method, path, resp.StatusCode, respBody))
	}
	return NewResponse(resp.StatusCode, respBody), nil
}

// classify は失敗レスポンスを分類する。
// 本文が空ならステータスのみ、JSONなら構造化エラーを保持し、
// それ以外の本文はPARSEとして扱う。
func classify(method, path string, status int, body []byte) *Error {
	e := &Error{
		Cause:      causeForStatus(status),
		StatusCode: status,
		Raw:        string(body),
		Method:     method,
		Path:       path,
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return e
	}
	if !json.Valid(trimmed) {
		e.Cause = CauseParse
		return e
	}

	var eb event.ErrorBody
	if err := json.Unmarshal(trimmed, &eb); err == nil {
		e.Body = &eb
	}
	return e
}

// fail は失敗をログとトーストに通知し、そのまま返す。
func (c *Client) fail(err error) error {
	if c.sinks.LogError != nil {
		c.sinks.LogError(err)
	} else {
		c.logger.Error("request failed", zap.Error(err))
	}

	if c.sinks.Notify != nil {
		detail := err.Error()
		var pe *Error
		if errors.As(err, &pe) {
			detail = pe.Detail()
		}
		c.sinks.Notify("エラー: "+detail, true)
	}
	return err
}

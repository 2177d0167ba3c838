package httpclient

import (
	"errors"
	"fmt"

	"github.com/nao1215/notifysync/pkg/event"
)

// Cause は失敗の分類。
type Cause string

const (
	// CauseNetwork はレスポンスを受け取れなかったことを表す。
	CauseNetwork Cause = "NETWORK"
	// CauseClient は4xxステータス（認証エラーやバリデーションエラー）を表す。
	CauseClient Cause = "HTTP_4XX"
	// CauseServer は5xxステータスを表す。
	CauseServer Cause = "HTTP_5XX"
	// CauseParse は失敗レスポンスの本文を解釈できなかったことを表す。
	CauseParse Cause = "PARSE"
)

// errors.Is で分類を判定するための番兵エラー。
var (
	ErrNetwork = errors.New("network unreachable")
	ErrClient  = errors.New("client error")
	ErrServer  = errors.New("server error")
	ErrParse   = errors.New("unparsable error body")
)

// Error はパイプラインが返すエラー。
type Error struct {
	// Cause は失敗の分類。
	Cause Cause
	// StatusCode はHTTPステータスコード。レスポンスがない場合は0。
	StatusCode int
	// Body はサーバーが返した構造化エラー。JSONでない場合はnil。
	Body *event.ErrorBody
	// Raw はレスポンス本文そのもの。
	Raw string
	// Method はリクエストメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// Err は下位のエラー（通信エラー等）。
	Err error
}

// Error はエラーメッセージを返す。
func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Cause, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: status=%d, body=%s", e.Method, e.Path, e.Cause, e.StatusCode, e.Raw)
}

// Unwrap は下位のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Is は番兵エラーと分類を対応させる。
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Cause == CauseNetwork
	case ErrClient:
		return e.Cause == CauseClient
	case ErrServer:
		return e.Cause == CauseServer
	case ErrParse:
		return e.Cause == CauseParse
	}
	return false
}

// Detail はユーザーに見せる説明を返す。
// サーバーが詳細を返していればそれを優先する。
func (e *Error) Detail() string {
	if e.Body != nil {
		if e.Body.Message != "" {
			return e.Body.Message
		}
		if e.Body.Error != "" {
			return e.Body.Error
		}
	}
	switch e.Cause {
	case CauseNetwork:
		return "サーバーに接続できません"
	case CauseParse:
		return fmt.Sprintf("エラーレスポンスを解釈できません (status=%d)", e.StatusCode)
	}
	if e.Raw != "" {
		return e.Raw
	}
	return fmt.Sprintf("リクエストに失敗しました (status=%d)", e.StatusCode)
}

// causeForStatus は失敗ステータスを分類する。
// 4xx以外の失敗ステータスはサーバー側の問題として扱う。
func causeForStatus(status int) Cause {
	if status >= 400 && status < 500 {
		return CauseClient
	}
	return CauseServer
}

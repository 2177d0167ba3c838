package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/notifysync/internal/devserver"
	"github.com/nao1215/notifysync/internal/realtime"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testBackend は開発用バックエンドを起動する。
func testBackend(t *testing.T) (*devserver.Server, string) {
	t.Helper()

	backend, err := devserver.NewServer(devserver.Config{Seed: true})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(func() {
		backend.Broker().Close()
		srv.Close()
		_ = backend.Shutdown(context.Background())
	})
	return backend, srv.URL
}

// run はコマンドを実行し、標準出力と標準エラー出力を返す。
func run(t *testing.T, ctx context.Context, baseURL string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{
		"--env-file", filepath.Join(t.TempDir(), "none.env"),
		"--api-url", baseURL + "/notifications",
		"--ws-url", "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/websocket",
		"--user", "1",
		"--role", "PATIENT",
		"--log-level", "error",
		"--no-color",
	}, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"チャット一覧", []string{"list", "chat"}, "Hello! Is my report ready?", false},
		{"同意リクエスト一覧", []string{"list", "consent"}, "consent #501", false},
		{"一方向通知を作成", []string{"send", "one-way", "-m", "from cli"}, "Notification sent successfully!!", false},
		{"チャット通知を削除", []string{"delete", "chat", "1"}, "Notification deleted successfully!!", false},
		{"チャット通知をすべて削除", []string{"delete-all", "chat"}, "Notifications deleted successfully!!", false},
		{"不正なチャット", []string{"trigger", "invalid-chat"}, "HTTP_4XX (status=400): Invalid chat", false},
		{"存在しない受信者", []string{"trigger", "invalid-recipient"}, "HTTP_4XX (status=404): Recipient not found", false},
		{"認証なし", []string{"unauthorized"}, "HTTP_4XX (status=403)", false},
		{"フェイクイベント", []string{"fake-event", "--type", "CHAT", "-b", "queued"}, "Event Sent to Queue!", false},
		{"不明なカテゴリ", []string{"list", "sms"}, "", true},
		{"不明なトリガー", []string{"trigger", "nothing"}, "", true},
		{"不正な通知ID", []string{"delete", "chat", "abc"}, "", true},
		{"他人の通知を削除", []string{"delete", "chat", "2"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, baseURL := testBackend(t)
			stdout, _, err := run(t, context.Background(), baseURL, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(stdout, tt.want) {
				t.Errorf("stdout = %q, want %q を含む", stdout, tt.want)
			}
		})
	}
}

func TestErrorToast(t *testing.T) {
	t.Parallel()

	_, baseURL := testBackend(t)
	_, stderr, err := run(t, context.Background(), baseURL, "trigger", "invalid-consent")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if !strings.Contains(stderr, "エラー: Invalid consent request") {
		t.Errorf("stderr = %q, want エラートーストを含む", stderr)
	}
}

func TestFailureReportedOnce(t *testing.T) {
	t.Parallel()

	_, baseURL := testBackend(t)

	t.Run("リクエストの失敗はトースト1回だけ表示すること", func(t *testing.T) {
		t.Parallel()

		_, stderr, err := run(t, context.Background(), baseURL, "delete", "chat", "9999")
		if err == nil {
			t.Fatal("error = nil, want error")
		}
		if got := strings.Count(stderr, "エラー:"); got != 1 {
			t.Errorf("エラー表示の回数 = %d, want 1 (stderr = %q)", got, stderr)
		}
		if strings.Contains(stderr, "Error:") {
			t.Errorf("stderr = %q, cobraのエラー表示を含む", stderr)
		}

		var buf bytes.Buffer
		ReportError(&buf, err)
		if buf.Len() != 0 {
			t.Errorf("ReportError() = %q, want empty", buf.String())
		}
	})

	t.Run("リクエスト以外の失敗はReportErrorで表示すること", func(t *testing.T) {
		t.Parallel()

		_, stderr, err := run(t, context.Background(), baseURL, "list", "sms")
		if err == nil {
			t.Fatal("error = nil, want error")
		}
		if stderr != "" {
			t.Errorf("stderr = %q, want empty", stderr)
		}

		var buf bytes.Buffer
		ReportError(&buf, err)
		if got, want := buf.String(), "エラー: "+err.Error()+"\n"; got != want {
			t.Errorf("ReportError() = %q, want %q", got, want)
		}
	})
}

func TestWatch(t *testing.T) {
	t.Parallel()

	backend, baseURL := testBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		stdout, stderr string
		err            error
	}
	done := make(chan result, 1)
	go func() {
		stdout, stderr, err := run(t, ctx, baseURL, "watch", "--tab", "one-way")
		done <- result{stdout, stderr, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for backend.Broker().Subscribers(realtime.Topic(1)) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("購読を待機中にタイムアウトしました")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("error = %v", r.err)
		}
		for _, want := range []string{"chatList", "consentList", "onewayList"} {
			if !strings.Contains(r.stdout, want) {
				t.Errorf("stdout = %q, want %q を含む", r.stdout, want)
			}
		}
		if !strings.Contains(r.stderr, "接続中") {
			t.Errorf("stderr = %q, want 接続状態を含む", r.stderr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch が終了しませんでした")
	}
}

package cli

import (
	"io"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/nao1215/notifysync/pkg/event"
)

// printer は一覧、トースト、接続状態を端末に出力する。
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	errorC  *color.Color
	toastC  *color.Color
	statusC *color.Color
}

func newPrinter(out, errOut io.Writer, colored bool) *printer {
	p := &printer{
		out:     out,
		errOut:  errOut,
		errorC:  color.New(color.FgRed, color.Bold),
		toastC:  color.New(color.FgGreen),
		statusC: color.New(color.FgCyan),
	}
	if !colored {
		p.errorC.DisableColor()
		p.toastC.DisableColor()
		p.statusC.DisableColor()
	}
	return p
}

// render は一覧を表形式で出力する。
func (p *printer) render(listID string, items []event.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()

	writeLine(p.out, "== %s (%d) ==", listID, len(items))
	if len(items) == 0 {
		writeLine(p.out, "通知はありません")
		return
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	writeLine(tw, "ID\tMESSAGE\tRECIPIENT\tDETAIL")
	for _, item := range items {
		writeLine(tw, "%d\t%s\t%s/%d\t%s", item.ID, item.Message, item.RecipientType, item.RecipientID, detail(item))
	}
	_ = tw.Flush()
}

// detail はカテゴリ固有の項目を表示用にまとめる。
func detail(item event.Item) string {
	switch {
	case item.ChatType != "" || item.ChatID != 0:
		return item.ChatType + " #" + strconv.FormatInt(item.ChatID, 10)
	case item.ConsentRequestID != 0:
		return "consent #" + strconv.FormatInt(item.ConsentRequestID, 10)
	}
	return "-"
}

// notify はトーストを標準エラー出力に出す。
func (p *printer) notify(message string, isError bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if isError {
		_, _ = p.errorC.Fprintln(p.errOut, message)
		return
	}
	_, _ = p.toastC.Fprintln(p.errOut, message)
}

// status は接続状態を標準エラー出力に出す。
func (p *printer) status(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if connected {
		_, _ = p.statusC.Fprintln(p.errOut, "● 接続中")
		return
	}
	_, _ = p.statusC.Fprintln(p.errOut, "○ 切断")
}

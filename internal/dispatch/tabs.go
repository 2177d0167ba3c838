package dispatch

import (
	"sync"

	"github.com/nao1215/notifysync/pkg/event"
)

// ActiveSource は表示中のカテゴリを返す。
type ActiveSource interface {
	Active() event.Category
}

// Tabs は表示中のカテゴリを保持する。
type Tabs struct {
	mu     sync.RWMutex
	active event.Category
}

// NewTabs は初期カテゴリを表示中としたTabsを生成する。
func NewTabs(initial event.Category) *Tabs {
	return &Tabs{active: initial}
}

// Active は表示中のカテゴリを返す。
func (t *Tabs) Active() event.Category {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// Set は表示中のカテゴリを切り替え、切り替え前のカテゴリを返す。
func (t *Tabs) Set(c event.Category) event.Category {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.active
	t.active = c
	return prev
}

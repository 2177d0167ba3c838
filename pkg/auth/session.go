package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Role はユーザーの種別を表す。
type Role string

const (
	// RolePatient は患者ユーザーを表す。
	RolePatient Role = "PATIENT"
	// RoleDoctor は医師ユーザーを表す。
	RoleDoctor Role = "DOCTOR"
	// RoleAdmin は管理者ユーザーを表す。
	RoleAdmin Role = "ADMIN"
	// RoleLabStaff は検査スタッフを表す。
	RoleLabStaff Role = "LABSTAFF"
	// RoleRadiologist は放射線科医を表す。
	RoleRadiologist Role = "RADIOLOGIST"
	// RoleSuperAdmin はスーパー管理者を表す。
	RoleSuperAdmin Role = "SUPERADMIN"
)

// knownRoles はバックエンドが受け付けるロールの集合。
var knownRoles = map[Role]struct{}{
	RolePatient:     {},
	RoleDoctor:      {},
	RoleAdmin:       {},
	RoleLabStaff:    {},
	RoleRadiologist: {},
	RoleSuperAdmin:  {},
}

// ErrEmptySession はユーザーIDまたはロールが設定されていないセッションを表す。
var ErrEmptySession = errors.New("セッションが空です")

// ParseRole は文字列をRoleに変換する。大文字小文字は区別しない。
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("不明なロールです: %q", s)
	}
	return r, nil
}

// Session は現在操作しているユーザーの識別情報。
type Session struct {
	// UserID はユーザーの一意識別子。
	UserID int64
	// Role はユーザーの種別。
	Role Role
}

// Validate はセッションが接続に使える状態かを検証する。
func (s Session) Validate() error {
	if s.UserID == 0 || s.Role == "" {
		return ErrEmptySession
	}
	if _, ok := knownRoles[s.Role]; !ok {
		return fmt.Errorf("不明なロールです: %q", s.Role)
	}
	return nil
}

// String はログ出力用の表現を返す。
func (s Session) String() string {
	return fmt.Sprintf("%s:%d", s.Role, s.UserID)
}

// Holder はアクティブなセッションを1つだけ保持する。
// ユーザー切り替えはSwitchを通じてのみ行う。
type Holder struct {
	mu      sync.RWMutex
	current Session
}

// NewHolder は初期セッションを持つHolderを生成する。
func NewHolder(initial Session) (*Holder, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Holder{current: initial}, nil
}

// Current は現在のセッションを返す。
func (h *Holder) Current() Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Switch はセッションを切り替える。
// 切り替え前と異なるセッションになった場合にchangedがtrueになる。
func (h *Holder) Switch(next Session) (changed bool, err error) {
	if err := next.Validate(); err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	changed = h.current != next
	h.current = next
	return changed, nil
}

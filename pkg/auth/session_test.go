package auth

import (
	"errors"
	"testing"
)

// TestParseRole はロール文字列の変換を検証する。
func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "PATIENT", want: RolePatient},
		{in: "doctor", want: RoleDoctor},
		{in: " Radiologist ", want: RoleRadiologist},
		{in: "NURSE", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestHolder はセッションの保持と切り替えを検証する。
func TestHolder(t *testing.T) {
	t.Parallel()

	t.Run("空のセッションでは生成できないこと", func(t *testing.T) {
		t.Parallel()

		if _, err := NewHolder(Session{}); !errors.Is(err, ErrEmptySession) {
			t.Errorf("err = %v, want ErrEmptySession", err)
		}
	})

	t.Run("切り替えで現在のセッションが変わること", func(t *testing.T) {
		t.Parallel()

		h, err := NewHolder(Session{UserID: 1, Role: RolePatient})
		if err != nil {
			t.Fatalf("NewHolder()でエラーが発生: %v", err)
		}
		changed, err := h.Switch(Session{UserID: 2, Role: RoleDoctor})
		if err != nil {
			t.Fatalf("Switch()でエラーが発生: %v", err)
		}
		if !changed {
			t.Error("changed = false, want true")
		}
		if got := h.Current(); got.UserID != 2 || got.Role != RoleDoctor {
			t.Errorf("Current() = %v, want DOCTOR:2", got)
		}
	})

	t.Run("同じセッションへの切り替えはchangedがfalseになること", func(t *testing.T) {
		t.Parallel()

		h, _ := NewHolder(Session{UserID: 1, Role: RolePatient})
		changed, err := h.Switch(Session{UserID: 1, Role: RolePatient})
		if err != nil {
			t.Fatalf("Switch()でエラーが発生: %v", err)
		}
		if changed {
			t.Error("changed = true, want false")
		}
	})

	t.Run("空のセッションへの切り替えは拒否され元のセッションが残ること", func(t *testing.T) {
		t.Parallel()

		h, _ := NewHolder(Session{UserID: 1, Role: RolePatient})
		if _, err := h.Switch(Session{}); err == nil {
			t.Fatal("Switch()がエラーを返すべきだが、nilが返った")
		}
		if got := h.Current(); got.UserID != 1 {
			t.Errorf("Current().UserID = %d, want 1", got.UserID)
		}
	})
}

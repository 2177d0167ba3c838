package devserver

import (
	"context"
	"fmt"

	"github.com/nao1215/notifysync/pkg/auth"
	"github.com/nao1215/notifysync/pkg/event"
)

// seedUser は初期データのユーザー。
type seedUser struct {
	id   int64
	role auth.Role
	name string
}

// seedUsers は受信者として有効なユーザーの初期データ。
var seedUsers = []seedUser{
	{id: 1, role: auth.RolePatient, name: "patient-1"},
	{id: 2, role: auth.RoleDoctor, name: "doctor-2"},
	{id: 3, role: auth.RoleAdmin, name: "admin-3"},
	{id: 4, role: auth.RoleLabStaff, name: "labstaff-4"},
	{id: 5, role: auth.RoleRadiologist, name: "radiologist-5"},
	{id: 6, role: auth.RoleSuperAdmin, name: "superadmin-6"},
}

// seedItems はカテゴリが空の場合に投入する通知。
var seedItems = map[event.Category][]event.Item{
	event.CategoryChat: {
		{Message: "Hello! Is my report ready?", RecipientType: "PATIENT", RecipientID: 1, ChatType: "PRIVATE", ChatID: 101},
		{Message: "Please schedule follow-up.", RecipientType: "DOCTOR", RecipientID: 2, ChatType: "GROUP", ChatID: 102},
	},
	event.CategoryConsent: {
		{Message: "Dr. Smith requests access to your MRI records.", RecipientType: "PATIENT", RecipientID: 1, ConsentRequestID: 501},
	},
	event.CategoryOneWay: {
		{Message: "System maintenance scheduled for tonight.", RecipientType: "PATIENT", RecipientID: 1},
	},
}

// seed はユーザーと通知の初期データを投入する。
// 通知はカテゴリが空の場合だけ投入する。
func seed(ctx context.Context, repo *Repository) error {
	for _, u := range seedUsers {
		if err := repo.UpsertUser(ctx, u.id, u.role, u.name); err != nil {
			return err
		}
	}

	for _, c := range event.Categories {
		n, err := repo.Count(ctx, c)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		for _, item := range seedItems[c] {
			if _, err := repo.Create(ctx, c, item); err != nil {
				return fmt.Errorf("初期データの投入に失敗: %w", err)
			}
		}
	}
	return nil
}

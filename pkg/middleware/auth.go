package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/notifysync/pkg/auth"
)

// コンテキストキー。
const (
	ctxKeyUserID = "user_id"
	ctxKeyRole   = "role"
)

// BearerAuth はBearerトークンから {role, id} を取り出すGinミドルウェアを返す。
// secretが空の場合は署名を検証しない（疑似JWTを受け付ける）。
// トークンがない、または不正な場合は403を返す。
func BearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			AbortWithError(c, http.StatusForbidden, "Authorizationヘッダーが必要です")
			return
		}

		claims, err := auth.ParseBearer(header, secret)
		if err != nil {
			AbortWithError(c, http.StatusForbidden, "トークンが無効です")
			return
		}

		c.Set(ctxKeyUserID, claims.ID)
		c.Set(ctxKeyRole, claims.Role)
		c.Next()
	}
}

// GetSession はGinコンテキストから認証済みセッションを取得する。
// BearerAuthミドルウェアが事前に適用されている必要がある。
func GetSession(c *gin.Context) (auth.Session, bool) {
	id, ok := c.Get(ctxKeyUserID)
	if !ok {
		return auth.Session{}, false
	}
	role, ok := c.Get(ctxKeyRole)
	if !ok {
		return auth.Session{}, false
	}
	s := auth.Session{}
	s.UserID, _ = id.(int64)
	s.Role, _ = role.(auth.Role)
	if s.Validate() != nil {
		return auth.Session{}, false
	}
	return s, true
}

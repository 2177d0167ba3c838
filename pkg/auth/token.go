package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims はトークンのペイロード。バックエンドはroleとidのみを参照する。
type Claims struct {
	// Role はユーザーの種別。
	Role Role `json:"role"`
	// ID はユーザーID。
	ID int64 `json:"id"`
	jwt.RegisteredClaims
}

// Builder はセッションから認証トークンを生成する。
type Builder interface {
	Build(s Session) (string, error)
}

// signaturePlaceholder は疑似JWTの署名部に入れる固定値。
// base64url("signature") なので一般的なJWTパーサでもデコードできる。
var signaturePlaceholder = base64.RawURLEncoding.EncodeToString([]byte("signature"))

// Simulated は署名なしの疑似JWTを生成する。
// ヘッダー部とシグネチャ部は固定で、ボディ部にroleとidを持つ。
// 暗号学的な意味はなく、信頼の判断はサーバー側で行う。
type Simulated struct{}

// Build は "<header>.<base64url {role,id}>.<placeholder>" 形式のトークンを返す。
func (Simulated) Build(s Session) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: s.Role, ID: s.UserID})
	unsigned, err := token.SigningString()
	if err != nil {
		return "", fmt.Errorf("トークンのエンコードに失敗: %w", err)
	}
	return unsigned + "." + signaturePlaceholder, nil
}

// Signed はHS256で署名したJWTを生成する。
type Signed struct {
	// Secret は署名用の秘密鍵。
	Secret string
	// TTL はトークンの有効期間。0の場合は24時間。
	TTL time.Duration
}

// Build は署名済みトークンを返す。
func (b Signed) Build(s Session) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	ttl := b.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := Claims{
		Role: s.Role,
		ID:   s.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "notifysync-client",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(b.Secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// NewBuilder は秘密鍵の有無に応じてBuilderを選ぶ。
// 秘密鍵が空の場合は疑似JWTを使う。
func NewBuilder(secret string) Builder {
	if secret == "" {
		return Simulated{}
	}
	return Signed{Secret: secret}
}

// Bearer はAuthorizationヘッダーの値を組み立てる。
func Bearer(token string) string {
	return "Bearer " + token
}

// ParseBearer はAuthorizationヘッダーからクレームを取り出す。
// secretが空の場合は署名を検証しない（疑似JWTを受け付ける開発用途）。
func ParseBearer(header, secret string) (*Claims, error) {
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenString == "" {
		return nil, fmt.Errorf("Bearer トークン形式が不正です")
	}

	claims := &Claims{}
	if secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("トークンの解析に失敗: %w", err)
		}
	} else {
		token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return nil, fmt.Errorf("トークンが無効です: %w", err)
		}
	}

	if _, ok := knownRoles[claims.Role]; !ok {
		return nil, fmt.Errorf("不明なロールです: %q", claims.Role)
	}
	if claims.ID == 0 {
		return nil, fmt.Errorf("ユーザーIDがありません")
	}
	return claims, nil
}

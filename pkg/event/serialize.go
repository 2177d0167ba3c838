package event

import (
	"encoding/json"
	"fmt"
)

// Decode はJSONを指定された型にデシリアライズする。
func Decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &v, nil
}

// DecodePushed はプッシュ配信の本文をPushedに変換する。
func DecodePushed(data []byte) (*Pushed, error) {
	return Decode[Pushed](data)
}

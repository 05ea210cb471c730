// Package event はバスからクライアントストリームへ配信するイベントの
// エンベロープ表現と、受信ペイロードのイベント種別分類を提供する。
package event

import "encoding/json"

// イベント種別。SSEストリームのイベント名としてそのまま使用する。
const (
	// TypeConnect は購読確立時にサーバーが合成する接続確認イベント。
	TypeConnect = "connect"
	// TypeNotification は通知配信イベント。
	TypeNotification = "notification"
	// TypeMessage は種別を特定できないペイロードの既定イベント。
	TypeMessage = "message"
)

// Envelope はクライアントのストリームへ配信する1件のイベント。
// バスのメッセージ1件につき1つ構築され、書き出し後は破棄される。
type Envelope struct {
	// Event はイベント種別（"connect" | "notification" | "message"）。
	Event string `json:"event"`
	// Data は配信するペイロード。通常はJSON文字列。
	Data string `json:"data"`
}

// Classify はバスから受信した生のペイロードをエンベロープへ変換する。
//
// ペイロードがJSONオブジェクトとして解釈でき、文字列のeventフィールドを
// 持つ場合はその値をイベント種別とする。それ以外（JSONでない、eventが
// 無い・空・文字列でない）は"message"として扱う。解析はイベント種別の
// 判定のみに使い、Dataには受信したペイロードを一切加工せず保持する。
// 未知の形式のペイロードもそのまま配信されることを保証するため。
func Classify(payload []byte) Envelope {
	env := Envelope{
		Event: TypeMessage,
		Data:  string(payload),
	}

	var probe struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil && probe.Event != "" {
		env.Event = probe.Event
	}
	return env
}

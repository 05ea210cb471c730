package relay

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nao1215/relay/pkg/event"
)

// 通知フィールドの既定値。リクエストで省略されたフィールドを補う。
const (
	defaultTitle   = "通知"
	defaultMessage = "新しい通知があります"
	defaultIcon    = "/static/notification-icon.png"
)

// timestampLayouts は受理するISO-8601タイムスタンプの形式。
// RFC 3339は末尾Zと数値オフセットの両方を受理する。
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// parseTimestamp はISO-8601形式のタイムスタンプ文字列を解釈する。
// 解釈できない場合は現在時刻nowに置き換える。タイムスタンプの不正を
// 理由にリクエストを拒否することはない。
func parseTimestamp(value string, now time.Time) time.Time {
	if value == "" {
		return now
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return now
}

// notifyRequest は通知発行リクエストのJSON構造。
// すべてのフィールドは省略可能で、省略時は既定値で補われる。
type notifyRequest struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Icon は通知アイコンのURI。
	Icon string `json:"icon"`
	// Timestamp は通知の作成日時（ISO-8601文字列）。
	Timestamp string `json:"timestamp"`
	// Category は通知のカテゴリラベル。
	Category string `json:"category"`
	// Priority は優先度（0:通常 1:重要 2:緊急）。
	Priority int64 `json:"priority"`
}

// normalizedNotification は既定値適用後の通知フィールド。
type normalizedNotification struct {
	Title     string
	Message   string
	Icon      string
	Category  string
	Priority  int64
	CreatedAt time.Time
}

// normalizeNotification はリクエストに既定値を適用して正規化する。
func normalizeNotification(req notifyRequest, now time.Time) normalizedNotification {
	n := normalizedNotification{
		Title:     req.Title,
		Message:   req.Message,
		Icon:      req.Icon,
		Category:  req.Category,
		Priority:  req.Priority,
		CreatedAt: parseTimestamp(req.Timestamp, now),
	}
	if n.Title == "" {
		n.Title = defaultTitle
	}
	if n.Message == "" {
		n.Message = defaultMessage
	}
	if n.Icon == "" {
		n.Icon = defaultIcon
	}
	return n
}

// notificationPayload はバスへ発行する配信ペイロードのJSON構造。
// 購読セッションはこのJSONを加工せずそのままストリームへ流す。
type notificationPayload struct {
	// Event はイベント種別。常に"notification"。
	Event string `json:"event"`
	// ID は永続化済み通知のID。ブロードキャストの一斉発行では持たない。
	ID int64 `json:"id,omitempty"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Icon は通知アイコンのURI。
	Icon string `json:"icon"`
	// Timestamp は通知の作成日時（RFC 3339形式）。
	Timestamp string `json:"timestamp"`
	// Category は通知のカテゴリラベル。
	Category string `json:"category,omitempty"`
	// Priority は優先度。
	Priority int64 `json:"priority"`
}

// buildPayload は正規化済み通知から配信ペイロードを構築する。
// idが0の場合はIDフィールドを含めない（永続化前のブロードキャスト用）。
func buildPayload(id int64, n normalizedNotification) ([]byte, error) {
	return json.Marshal(notificationPayload{
		Event:     event.TypeNotification,
		ID:        id,
		Title:     n.Title,
		Message:   n.Message,
		Icon:      n.Icon,
		Timestamp: n.CreatedAt.Format(time.RFC3339),
		Category:  n.Category,
		Priority:  n.Priority,
	})
}

// toNullString は空文字列をNULLとして扱うsql.NullStringへ変換する。
func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package bus

import (
	"context"
	"errors"
	"time"
)

// ErrClosed はクローズ済みのバスまたは購読ハンドルに対する操作で返される。
var ErrClosed = errors.New("bus: closed")

// Bus はメッセージバスへの統一インターフェース。
// 1つのBusインスタンスを複数のセッションが並行して利用できる。
type Bus interface {
	// Publish はペイロードを指定のルーティングターゲットへ発行する。
	// ブローカーに到達できない場合はエラーを返す。
	Publish(ctx context.Context, target string, payload []byte) error

	// Subscribe は指定ターゲット群への購読ハンドルを作成する。
	// nameは購読者の識別子（ユーザーID）で、永続キューの決定論的な
	// 命名に使用する。必要なバス側リソース（キュー・バインディング）は
	// この時点で遅延生成される。
	Subscribe(ctx context.Context, name string, targets ...string) (Subscription, error)

	// Target はユーザーIDから購読ターゲットを導出する。
	// 発行側と購読側で同一のキーを得るための唯一の導出点。
	Target(userID string) string

	// BroadcastTarget は全ユーザー向けのキャッチオールターゲットを返す。
	BroadcastTarget() string

	// Close はバス接続を解放する。プロセス終了時に呼び出す。
	Close() error
}

// Subscription は1購読者分のバス購読ハンドル。
// セッション内では subscribe → Next ループ → Unsubscribe が
// 逐次的に呼ばれる。並行呼び出しは想定しない。
type Subscription interface {
	// Next は次のメッセージ本文を返す。timeout以内にメッセージが
	// 届かなかった場合は (nil, nil) を返す。ctxのキャンセルまたは
	// ブローカー障害時はエラーを返し、購読は継続できない。
	Next(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Unsubscribe はバス側リソースを解放する。複数回呼んでも、
	// すでにクローズ済みでも安全。
	Unsubscribe() error
}

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/relay/pkg/bus"
	"github.com/nao1215/relay/pkg/event"
)

// pollTimeout はバスの1回のポーリング待ち時間。クライアント切断の検知は
// 最大でこの時間だけ遅延する。
const pollTimeout = time.Second

// session は接続中のクライアント1人分の購読セッション。
// ユーザー別ターゲットとブロードキャストターゲットへのバス購読を保持し、
// バスのメッセージをエンベロープへ変換してストリームへ供給する。
// セッション内の操作は逐次的で、並行呼び出しは行わない。
type session struct {
	userID string
	target string
	sub    bus.Subscription
	once   sync.Once
}

// newSession はユーザーのバス購読を確立してセッションを開始する。
// 購読はユーザー別ターゲットに加えてブロードキャストターゲットにも
// バインドされ、一斉配信のメッセージも受信できる。
func newSession(ctx context.Context, b bus.Bus, userID string) (*session, error) {
	target := b.Target(userID)
	sub, err := b.Subscribe(ctx, userID, target, b.BroadcastTarget())
	if err != nil {
		return nil, fmt.Errorf("ユーザー %s の購読に失敗: %w", userID, err)
	}
	return &session{userID: userID, target: target, sub: sub}, nil
}

// ConnectPayload は購読確立を通知する合成connectイベントのデータを返す。
// セッションが自ら作り出す唯一のエンベロープで、それ以外はすべて
// バスからの中継となる。
func (s *session) ConnectPayload() string {
	payload, _ := json.Marshal(map[string]string{
		"status":  "connected",
		"channel": s.target,
	})
	return string(payload)
}

// Next は次に配信すべきエンベロープを返す。ポーリングの待ち時間内に
// メッセージが届かなかった場合は (nil, nil) を返し、呼び出し側は
// ループを継続する。ctxのキャンセルまたはバス障害時はエラーを返し、
// セッションは終了する。
func (s *session) Next(ctx context.Context) (*event.Envelope, error) {
	payload, err := s.sub.Next(ctx, pollTimeout)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	env := event.Classify(payload)
	return &env, nil
}

// Close はバス購読を解放する。正常終了・エラー・キャンセルのいずれの
// 経路でも一度だけ実行される。
func (s *session) Close() {
	s.once.Do(func() {
		_ = s.sub.Unsubscribe()
	})
}

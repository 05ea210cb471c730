package bus

import (
	"context"
	"sync"
	"time"
)

// subscriptionBuffer は購読1件あたりの受信バッファ長。
// バッファが溢れた場合、そのメッセージは配信されない（ベストエフォート）。
const subscriptionBuffer = 64

// Memory は単一プロセス内でチャネルによるファンアウトを行うバス実装。
// 外部ブローカー無しでの開発とテストに使用する。Redis Pub/Subと同じく
// 揮発性で、発行時に購読者がいなければメッセージは失われる。
type Memory struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemory は新しいインメモリバスを生成する。
func NewMemory() *Memory {
	return &Memory{
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
}

// Target はユーザーIDから購読ターゲットを導出する。
func (b *Memory) Target(userID string) string {
	return "channel:" + userID
}

// BroadcastTarget は全ユーザー向けのキャッチオールターゲットを返す。
func (b *Memory) BroadcastTarget() string {
	return "channel:broadcast"
}

// Publish はターゲットを購読中の全サブスクリプションへペイロードを配る。
func (b *Memory) Publish(_ context.Context, target string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs[target] {
		select {
		case sub.ch <- payload:
		default:
			// バッファ満杯の購読者には配信しない
		}
	}
	return nil
}

// Subscribe は指定ターゲット群への購読ハンドルを作成する。
func (b *Memory) Subscribe(_ context.Context, _ string, targets ...string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		bus:     b,
		targets: targets,
		ch:      make(chan []byte, subscriptionBuffer),
	}
	for _, target := range targets {
		if b.subs[target] == nil {
			b.subs[target] = make(map[*memorySubscription]struct{})
		}
		b.subs[target][sub] = struct{}{}
	}
	return sub, nil
}

// Subscribers は指定ターゲットの現在の購読者数を返す。
// 購読リソースの解放を検証するテストで使用する。
func (b *Memory) Subscribers(target string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[target])
}

// Close はバスを閉じ、以後の発行と購読を拒否する。
func (b *Memory) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// memorySubscription はインメモリバスの購読ハンドル。
type memorySubscription struct {
	bus     *Memory
	targets []string
	ch      chan []byte
	once    sync.Once
}

// Next は次のメッセージ本文を返す。timeout経過時は (nil, nil)。
func (s *memorySubscription) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload, ok := <-s.ch:
		if !ok {
			return nil, ErrClosed
		}
		return payload, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe は購読を全ターゲットから取り除く。冪等。
func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for _, target := range s.targets {
			delete(s.bus.subs[target], s)
			if len(s.bus.subs[target]) == 0 {
				delete(s.bus.subs, target)
			}
		}
		// 登録解除後は発行側がchに触れないためクローズして良い
		close(s.ch)
	})
	return nil
}

package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis はRedis Pub/Subをバックエンドとするバス実装。
// 発行はfire-and-forgetで、発行時に購読者がいなければメッセージは
// どこにも保持されない。購読者は接続中のメッセージのみ受け取る。
type Redis struct {
	client *redis.Client
}

// NewRedis はRedisへ接続し、疎通確認の上でバスを生成する。
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return &Redis{client: client}, nil
}

// Target はユーザーIDから購読チャネル名を導出する。
func (b *Redis) Target(userID string) string {
	return "channel:" + userID
}

// BroadcastTarget は全ユーザー向けのチャネル名を返す。
func (b *Redis) BroadcastTarget() string {
	return "channel:broadcast"
}

// Publish はペイロードを指定チャネルへ発行する。
func (b *Redis) Publish(ctx context.Context, target string, payload []byte) error {
	if err := b.client.Publish(ctx, target, payload).Err(); err != nil {
		return fmt.Errorf("チャネル %s への発行に失敗: %w", target, err)
	}
	return nil
}

// Subscribe は指定チャネル群を購読するハンドルを作成する。
// nameはRedisでは使用しない（キューを持たないため）。
func (b *Redis) Subscribe(ctx context.Context, _ string, targets ...string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, targets...)

	// 購読確立の応答を待ってからハンドルを返す
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("チャネル %v の購読に失敗: %w", targets, err)
	}
	return &redisSubscription{pubsub: pubsub}, nil
}

// Close はRedisクライアントを閉じる。
func (b *Redis) Close() error {
	return b.client.Close()
}

// redisSubscription はRedis Pub/Subの購読ハンドル。
type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
}

// Next は次のメッセージ本文を返す。timeout経過時は (nil, nil)。
// 購読確認やPong等のメッセージ以外の応答も (nil, nil) として扱い、
// 呼び出し側のポーリングループに委ねる。
func (s *redisSubscription) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	received, err := s.pubsub.ReceiveTimeout(ctx, timeout)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		return nil, fmt.Errorf("メッセージの受信に失敗: %w", err)
	}

	msg, ok := received.(*redis.Message)
	if !ok {
		return nil, nil
	}
	return []byte(msg.Payload), nil
}

// Unsubscribe は購読を閉じ、サーバー側のチャネル購読を解除する。冪等。
func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
	return nil
}

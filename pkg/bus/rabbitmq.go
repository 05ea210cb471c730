package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// exchangeName は通知配信に使用するトピックエクスチェンジ名。
const exchangeName = "notifications"

// RabbitMQ はRabbitMQのトピックエクスチェンジをバックエンドとするバス実装。
// メッセージはユーザー別の永続キューに蓄積されるため、購読確立後は
// 購読者が一時的に離れても未消費メッセージを取りこぼさない。
// キューは購読時に遅延宣言され、最後の購読者が離れると自動削除される。
type RabbitMQ struct {
	conn *amqp.Connection

	// pubMu は発行用チャネルを保護する。AMQPチャネルは並行利用できない。
	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// NewRabbitMQ はRabbitMQへ接続し、トピックエクスチェンジを宣言して
// バスを生成する。
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQへの接続に失敗: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("発行用チャネルの作成に失敗: %w", err)
	}

	if err := pubCh.ExchangeDeclare(
		exchangeName,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("エクスチェンジ %s の宣言に失敗: %w", exchangeName, err)
	}

	return &RabbitMQ{conn: conn, pubCh: pubCh}, nil
}

// Target はユーザーIDからルーティングキーを導出する。
func (b *RabbitMQ) Target(userID string) string {
	return "user." + userID
}

// BroadcastTarget は全ユーザー向けのルーティングキーを返す。
func (b *RabbitMQ) BroadcastTarget() string {
	return "broadcast"
}

// Publish はペイロードを永続メッセージとしてエクスチェンジへ発行する。
func (b *RabbitMQ) Publish(ctx context.Context, target string, payload []byte) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	err := b.pubCh.PublishWithContext(ctx,
		exchangeName,
		target,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("ルーティングキー %s への発行に失敗: %w", target, err)
	}
	return nil
}

// Subscribe はユーザー別の永続キューを宣言・バインドし、消費を開始する。
// 購読ごとに専用のAMQPチャネルを持つため、セッション間でチャネルを
// 共有しない。
func (b *RabbitMQ) Subscribe(_ context.Context, name string, targets ...string) (Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("購読用チャネルの作成に失敗: %w", err)
	}

	queueName := "notifications." + name
	queue, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		true,  // autoDelete: 最後の購読者が離れたらキューを削除
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("キュー %s の宣言に失敗: %w", queueName, err)
	}

	for _, target := range targets {
		if err := ch.QueueBind(queue.Name, target, exchangeName, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("キュー %s のバインドに失敗 (key=%s): %w", queueName, target, err)
		}
	}

	tag := uuid.New().String()
	deliveries, err := ch.Consume(
		queue.Name,
		tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("キュー %s の消費開始に失敗: %w", queueName, err)
	}

	return &rabbitSubscription{ch: ch, tag: tag, deliveries: deliveries}, nil
}

// Close はRabbitMQ接続を閉じる。接続配下の全チャネルも閉じられる。
func (b *RabbitMQ) Close() error {
	return b.conn.Close()
}

// rabbitSubscription はRabbitMQの購読ハンドル。
type rabbitSubscription struct {
	ch         *amqp.Channel
	tag        string
	deliveries <-chan amqp.Delivery
	once       sync.Once
}

// Next は次のメッセージ本文を返す。timeout経過時は (nil, nil)。
// 受信したメッセージはその場でackする。
func (s *rabbitSubscription) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case delivery, ok := <-s.deliveries:
		if !ok {
			return nil, ErrClosed
		}
		if err := delivery.Ack(false); err != nil {
			return nil, fmt.Errorf("メッセージのackに失敗: %w", err)
		}
		return delivery.Body, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe はコンシューマーを停止しチャネルを閉じる。冪等。
// キューはauto-delete宣言のため、明示的な削除は不要。
func (s *rabbitSubscription) Unsubscribe() error {
	s.once.Do(func() {
		_ = s.ch.Cancel(s.tag, false)
		_ = s.ch.Close()
	})
	return nil
}

// 通知リレーサービスのエントリポイント。
// クライアントがPOSTした通知を永続化し、メッセージバス経由で
// 購読者のSSEストリームへリアルタイム配信する。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nao1215/relay/internal/relay"
	"github.com/nao1215/relay/pkg/bus"
)

func main() {
	_ = godotenv.Load()

	port := getenv("PORT", "8000")
	dbPath := getenv("RELAY_DB_PATH", "notifications.db")

	b, err := newBus(context.Background())
	if err != nil {
		log.Fatalf("バスの初期化に失敗: %v", err)
	}
	defer func() { _ = b.Close() }()

	server, err := relay.NewServer(port, dbPath, b)
	if err != nil {
		log.Fatalf("リレーサーバーの初期化に失敗: %v", err)
	}
	defer func() { _ = server.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("通知リレーサービスを起動します: :%s", port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("通知リレーサービスの起動に失敗: %v", err)
	}
	log.Printf("通知リレーサービスを停止しました")
}

// newBus は環境変数RELAY_BUSに従ってメッセージバスを構築する。
// "redis"（既定）、"rabbitmq"、"memory"を選択できる。
func newBus(ctx context.Context) (bus.Bus, error) {
	backend := getenv("RELAY_BUS", "redis")

	switch backend {
	case "redis":
		addr := getenv("REDIS_HOST", "localhost") + ":" + getenv("REDIS_PORT", "6379")
		db, err := strconv.Atoi(getenv("REDIS_DB", "0"))
		if err != nil {
			return nil, fmt.Errorf("REDIS_DBが不正です: %w", err)
		}
		return bus.NewRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), db)
	case "rabbitmq":
		return bus.NewRabbitMQ(rabbitURL())
	case "memory":
		return bus.NewMemory(), nil
	default:
		return nil, fmt.Errorf("未知のバスバックエンド: %s", backend)
	}
}

// rabbitURL は環境変数からAMQP接続URLを組み立てる。
func rabbitURL() string {
	host := getenv("RABBITMQ_HOST", "localhost")
	port := getenv("RABBITMQ_PORT", "5672")
	user := getenv("RABBITMQ_USER", "guest")
	pass := getenv("RABBITMQ_PASS", "guest")
	vhost := getenv("RABBITMQ_VHOST", "/")
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s", user, pass, host, port, vhost)
}

// getenv は環境変数を取得し、未設定の場合は既定値を返す。
func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

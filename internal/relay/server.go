package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	relaydb "github.com/nao1215/relay/internal/relay/db"
	"github.com/nao1215/relay/pkg/bus"
	"github.com/nao1215/relay/pkg/event"
	"github.com/nao1215/relay/pkg/middleware"
)

// Server は通知リレーのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *relaydb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// bus は通知配信に使用するメッセージバス。
	bus bus.Bus
}

// NewServer は新しい通知リレーサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ適用を行う。バスは呼び出し側が
// 構築したインスタンスを注入し、ライフサイクルも呼び出し側が管理する。
func NewServer(port, dbPath string, b bus.Bus) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	if origins := os.Getenv("RELAY_ALLOWED_ORIGINS"); origins != "" {
		router.Use(middleware.CORS(strings.Split(origins, ",")))
	}

	s := &Server{
		router:  router,
		port:    port,
		queries: relaydb.New(sqlDB),
		db:      sqlDB,
		bus:     b,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動し、ctxのキャンセルでグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: ":" + s.port, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 通知の発行
	s.router.POST("/notify/:user_id", s.handleNotify())
	// 全ユーザーまたは指定ユーザー群へのブロードキャスト
	s.router.POST("/broadcast", s.handleBroadcast())
	// SSEストリームの購読
	s.router.GET("/events/:user_id", s.handleEvents())

	notifications := s.router.Group("/notifications")
	{
		// 通知一覧取得
		notifications.GET("/:id", s.handleListNotifications())
		// 通知を既読にする
		notifications.PUT("/:id/read", s.handleMarkAsRead())
		// ユーザーの全通知を既読にする
		notifications.PUT("/:id/read-all", s.handleMarkAllAsRead())
	}

	users := s.router.Group("/users")
	{
		// ユーザー登録
		users.POST("", s.handleCreateUser())
		// ユーザー一覧取得
		users.GET("", s.handleListUsers())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "relay"})
	})
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID int64 `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Icon は通知アイコンのURI。
	Icon *string `json:"icon"`
	// IsRead は通知の既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
	// ReadAt は既読にした日時（RFC3339形式）。未読の場合はnull。
	ReadAt *string `json:"read_at"`
	// Category は通知のカテゴリラベル。
	Category *string `json:"category"`
	// Priority は優先度（0:通常 1:重要 2:緊急）。
	Priority int64 `json:"priority"`
}

// toNotificationResponse はDB行をJSONレスポンスに変換する。
func toNotificationResponse(n relaydb.Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead != 0,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
		Priority:  n.Priority,
	}
	if n.Icon.Valid {
		resp.Icon = &n.Icon.String
	}
	if n.ReadAt.Valid {
		readAt := n.ReadAt.Time.Format(time.RFC3339)
		resp.ReadAt = &readAt
	}
	if n.Category.Valid {
		resp.Category = &n.Category.String
	}
	return resp
}

// toNotificationResponses はDB行のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []relaydb.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toNotificationResponse(n))
	}
	return responses
}

// persistNotification は正規化済み通知を1件永続化する。
func (s *Server) persistNotification(ctx context.Context, userID string, n normalizedNotification) (relaydb.Notification, error) {
	return s.queries.CreateNotification(ctx, relaydb.CreateNotificationParams{
		UserID:    userID,
		Title:     n.Title,
		Message:   n.Message,
		Icon:      toNullString(n.Icon),
		CreatedAt: n.CreatedAt,
		Category:  toNullString(n.Category),
		Priority:  n.Priority,
	})
}

// sendToUser は通知を1件永続化し、ユーザー別ターゲットへ発行する。
func (s *Server) sendToUser(ctx context.Context, userID string, n normalizedNotification) error {
	row, err := s.persistNotification(ctx, userID, n)
	if err != nil {
		return fmt.Errorf("通知の保存に失敗: %w", err)
	}

	payload, err := buildPayload(row.ID, n)
	if err != nil {
		return fmt.Errorf("ペイロードの構築に失敗: %w", err)
	}

	if err := s.bus.Publish(ctx, s.bus.Target(userID), payload); err != nil {
		return fmt.Errorf("バスへの発行に失敗: %w", err)
	}
	return nil
}

// handleNotify は通知を永続化し、ユーザー別ターゲットへ発行するハンドラ。
func (s *Server) handleNotify() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")

		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストボディが不正です: %v", err)})
			return
		}

		n := normalizeNotification(req, time.Now())

		row, err := s.persistNotification(c.Request.Context(), userID, n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の保存に失敗しました"})
			log.Printf("通知保存エラー: %v", err)
			return
		}

		payload, err := buildPayload(row.ID, n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ペイロードの構築に失敗しました"})
			log.Printf("ペイロード構築エラー: %v", err)
			return
		}

		if err := s.bus.Publish(c.Request.Context(), s.bus.Target(userID), payload); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "通知の配信に失敗しました"})
			log.Printf("バス発行エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          "success",
			"message":         fmt.Sprintf("ユーザー %s へ通知を送信しました", userID),
			"notification_id": row.ID,
		})
	}
}

// broadcastRequest はブロードキャストリクエストのJSON構造。
type broadcastRequest struct {
	notifyRequest
	// Users は配信先のユーザーIDリスト。省略時は全ユーザーが対象。
	Users []string `json:"users"`
}

// handleBroadcast は複数ユーザーへ通知を配信するハンドラ。
//
// 明示的なユーザーリストがある場合はユーザーごとに永続化と発行を行い、
// 一部の失敗は集計してレスポンスで報告する（途中で中断しない）。
// リストが無い場合はキャッチオールターゲットへ1回発行し、登録済みの
// 全ユーザー分の通知行を永続化する。
func (s *Server) handleBroadcast() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req broadcastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストボディが不正です: %v", err)})
			return
		}

		n := normalizeNotification(req.notifyRequest, time.Now())
		ctx := c.Request.Context()

		if len(req.Users) > 0 {
			sent, failed := 0, 0
			for _, userID := range req.Users {
				if err := s.sendToUser(ctx, userID, n); err != nil {
					failed++
					log.Printf("ユーザー %s への配信に失敗: %v", userID, err)
					continue
				}
				sent++
			}

			if failed > 0 {
				c.JSON(http.StatusOK, gin.H{
					"status":  "partial",
					"message": fmt.Sprintf("%d人のユーザーへ通知を送信しました（%d人分は失敗）", sent, failed),
				})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"status":  "success",
				"message": fmt.Sprintf("%d人のユーザーへ通知を送信しました", sent),
			})
			return
		}

		payload, err := buildPayload(0, n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ペイロードの構築に失敗しました"})
			log.Printf("ペイロード構築エラー: %v", err)
			return
		}

		if err := s.bus.Publish(ctx, s.bus.BroadcastTarget(), payload); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "ブロードキャストの配信に失敗しました"})
			log.Printf("バス発行エラー: %v", err)
			return
		}

		users, err := s.queries.ListUsers(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("ユーザー一覧取得エラー: %v", err)
			return
		}

		failed := 0
		for _, u := range users {
			if _, err := s.persistNotification(ctx, u.ID, n); err != nil {
				failed++
				log.Printf("ユーザー %s の通知保存に失敗: %v", u.ID, err)
			}
		}

		if failed > 0 {
			c.JSON(http.StatusOK, gin.H{
				"status":  "partial",
				"message": fmt.Sprintf("全ユーザー（%d人）へ通知を送信しました（%d人分の保存に失敗）", len(users), failed),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": fmt.Sprintf("全ユーザー（%d人）へ通知を送信しました", len(users)),
		})
	}
}

// handleEvents はSSEストリームを開き、バスのメッセージを配信するハンドラ。
// 最初に合成のconnectイベントを送出し、以後はクライアントが切断するまで
// バスのメッセージを中継し続ける。切断はリクエストコンテキストの
// キャンセルとして検知され、購読は1ポーリングサイクル以内に解放される。
func (s *Server) handleEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")
		ctx := c.Request.Context()

		sess, err := newSession(ctx, s.bus, userID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "購読の確立に失敗しました"})
			log.Printf("購読確立エラー: %v", err)
			return
		}
		defer sess.Close()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		c.SSEvent(event.TypeConnect, sess.ConnectPayload())
		c.Writer.Flush()

		for {
			env, err := sess.Next(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("ユーザー %s のセッションが異常終了: %v", userID, err)
				}
				return
			}
			if env == nil {
				// ポーリングのタイムアウト。イベントは送出せずループを継続する
				continue
			}
			c.SSEvent(env.Event, env.Data)
			c.Writer.Flush()
		}
	}
}

// handleListNotifications はユーザーの通知一覧を新しい順に返すハンドラ。
func (s *Server) handleListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limitが不正です"})
			return
		}
		offset, err := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offsetが不正です"})
			return
		}
		unreadOnly, err := strconv.ParseBool(c.DefaultQuery("unread_only", "false"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unread_onlyが不正です"})
			return
		}

		var notifications []relaydb.Notification
		if unreadOnly {
			notifications, err = s.queries.ListUnreadNotificationsByUserID(c.Request.Context(), relaydb.ListUnreadNotificationsByUserIDParams{
				UserID: userID,
				Limit:  limit,
				Offset: offset,
			})
		} else {
			notifications, err = s.queries.ListNotificationsByUserID(c.Request.Context(), relaydb.ListNotificationsByUserIDParams{
				UserID: userID,
				Limit:  limit,
				Offset: offset,
			})
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(notifications))
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
// is_readとread_atは常に同じUPDATEで同時に設定される。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが不正です"})
			return
		}

		rows, err := s.queries.MarkNotificationAsRead(c.Request.Context(), relaydb.MarkNotificationAsReadParams{
			ReadAt: sql.NullTime{Time: time.Now().UTC(), Valid: true},
			ID:     id,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			log.Printf("通知既読処理エラー: %v", err)
			return
		}
		if rows == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "通知を既読にしました"})
	}
}

// handleMarkAllAsRead はユーザーの全未読通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		err := s.queries.MarkAllNotificationsAsRead(c.Request.Context(), relaydb.MarkAllNotificationsAsReadParams{
			ReadAt: sql.NullTime{Time: time.Now().UTC(), Valid: true},
			UserID: userID,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			log.Printf("全通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "全通知を既読にしました"})
	}
}

// createUserRequest はユーザー登録リクエストのJSON構造。
type createUserRequest struct {
	// Username はユーザー名。
	Username string `json:"username" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
}

// userResponse はユーザーのJSONレスポンス構造。
type userResponse struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// CreatedAt は登録日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// isUniqueViolation はSQLiteの一意制約違反エラーかどうかを判定する。
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// handleCreateUser はユーザーを登録するハンドラ。
// 登録済みユーザーはブロードキャストの永続化対象になる。
func (s *Server) handleCreateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストボディが不正です: %v", err)})
			return
		}

		userID := uuid.New().String()
		err := s.queries.CreateUser(c.Request.Context(), relaydb.CreateUserParams{
			ID:        userID,
			Username:  req.Username,
			Email:     req.Email,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			if isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "ユーザー名またはメールアドレスが既に使用されています"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの登録に失敗しました"})
			log.Printf("ユーザー登録エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": userID, "message": "ユーザーを登録しました"})
	}
}

// handleListUsers は登録済みユーザーの一覧を返すハンドラ。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.queries.ListUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("ユーザー一覧取得エラー: %v", err)
			return
		}

		responses := make([]userResponse, 0, len(users))
		for _, u := range users {
			responses = append(responses, userResponse{
				ID:        u.ID,
				Username:  u.Username,
				Email:     u.Email,
				CreatedAt: u.CreatedAt.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, responses)
	}
}

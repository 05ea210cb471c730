// Package relay は通知リレーサービスの内部実装を提供する。
//
// クライアントがPOSTした通知を永続化し、メッセージバス経由で
// ユーザー別チャネルの購読者へSSEストリームとしてリアルタイム配信する。
// 全ユーザーまたは指定ユーザー群へのブロードキャスト、通知一覧の取得、
// 既読管理も行う。
package relay

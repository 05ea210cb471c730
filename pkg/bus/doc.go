// Package bus はパブリッシャーとサブスクライバーを仲介するメッセージバスの
// 統一インターフェースを提供する。
//
// バックエンドとしてRedis Pub/Sub（揮発性・fire-and-forget）、
// RabbitMQトピックエクスチェンジ（ユーザー別の永続キュー）、および
// 単一プロセス用のインメモリ実装を持つ。ファンアウト側のロジックは
// このインターフェースのみに依存し、バックエンドの差異を意識しない。
package bus

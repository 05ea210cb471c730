// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリと、ブラウザのEventSourceからのクロスオリジン接続を
// 許可するCORS設定を含む。
package middleware

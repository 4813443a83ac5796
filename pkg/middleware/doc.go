// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// セッショントークン（JWT）の発行と検証、リクエストログ、メトリクス計測、
// パニックリカバリ、CORS設定を含む。
package middleware

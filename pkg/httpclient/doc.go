// Package httpclient は外部エンドポイントとJSONをやり取りするHTTPクライアントを提供する。
//
// ドメインイベントのWebhook配信で使用する。
// 接続エラーと5xx/429はWithRetryで指定した回数まで指数バックオフでリトライする。
package httpclient

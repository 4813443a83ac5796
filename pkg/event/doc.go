// Package event はタスクとユーザーの書き込み操作に伴うドメインイベントを定義し、配信する。
//
// イベントはベストエフォートで配信される。配信の失敗は呼び出し元の操作を失敗させない。
// 配信先はMQTTブローカーとWebhookで、Multiで複数を束ねられる。
// Asyncで包むと配信はバックグラウンドで行われ、リクエストの応答を待たせない。
package event

package event

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nao1215/taskhub/pkg/httpclient"
)

// headerKeyEventType はWebhookでイベント種別を伝えるヘッダー。
const headerKeyEventType = "X-Taskhub-Event"

// WebhookPublisher はイベントをJSONでWebhookエンドポイントにPOSTする。
type WebhookPublisher struct {
	client *httpclient.Client
}

// NewWebhookPublisher はurlに配信するWebhookPublisherを生成する。
func NewWebhookPublisher(url string, opts ...httpclient.Option) *WebhookPublisher {
	return &WebhookPublisher{client: httpclient.New(url, opts...)}
}

// Publish はイベントを配信する。2xx以外の応答はエラーになる。
func (p *WebhookPublisher) Publish(ctx context.Context, e *Event) error {
	header := http.Header{}
	header.Set(headerKeyEventType, string(e.EventType))
	if err := p.client.PostJSON(ctx, "", e, nil, header); err != nil {
		return fmt.Errorf("Webhookへのイベント配信に失敗: %w", err)
	}
	return nil
}

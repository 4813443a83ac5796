package server

import (
	"time"

	"github.com/nao1215/taskhub/internal/domain"
)

// identityResponse は登録結果のレスポンス。パスワードハッシュは含めない。
type identityResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// tokenResponse はログイン結果のレスポンス。
type tokenResponse struct {
	Token string `json:"token"`
	// ExpiresIn はトークンの有効期間（秒）。
	ExpiresIn int64 `json:"expires_in"`
}

// taskResponse はタスクのJSON表現。
type taskResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// toTaskResponse はドメインのタスクをレスポンスに変換する。
func toTaskResponse(t domain.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		OwnerID:     t.OwnerID,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
}

// toTaskResponses はタスクの一覧をレスポンスに変換する。常に非nilを返す。
func toTaskResponses(tasks []domain.Task) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	return out
}

package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeUser はユーザー（Identity）を表す。
	AggregateTypeUser AggregateType = "User"
	// AggregateTypeTask はタスクを表す。
	AggregateTypeTask AggregateType = "Task"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeUserRegistered はユーザーが登録されたことを表す。
	TypeUserRegistered Type = "UserRegistered"
	// TypeTaskCreated はタスクが作成されたことを表す。
	TypeTaskCreated Type = "TaskCreated"
	// TypeTaskUpdated はタスクが更新されたことを表す。
	TypeTaskUpdated Type = "TaskUpdated"
	// TypeTaskDeleted はタスクが削除されたことを表す。
	TypeTaskDeleted Type = "TaskDeleted"
)

// Event は書き込み操作の完了後に発行される不変のイベントレコード。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// ActorID は操作を行ったユーザーのID。
	ActorID string `json:"actor_id"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// UserRegisteredData はUserRegisteredイベントのデータ。
// パスワードハッシュは含めない。
type UserRegisteredData struct {
	Username string `json:"username"`
}

// TaskCreatedData はTaskCreatedイベントのデータ。
type TaskCreatedData struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TaskUpdatedData はTaskUpdatedイベントのデータ。更新後の値を持つ。
type TaskUpdatedData struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	// Fields は更新要求に含まれていたフィールド名。
	Fields []string `json:"fields"`
}

// TaskDeletedData はTaskDeletedイベントのデータ。
type TaskDeletedData struct{}

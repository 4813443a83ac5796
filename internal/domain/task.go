package domain

import "time"

// Task はユーザーが所有するタスクを表す。
// OwnerIDは作成時に決まり、以後変更されない。
type Task struct {
	// ID はタスクの一意識別子（UUID）。
	ID string
	// OwnerID はタスクを作成したユーザーのID。
	OwnerID string
	// Title はタスクのタイトル。
	Title string
	// Description はタスクの説明。
	Description string
	// Completed は完了フラグ。
	Completed bool
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// TaskPatch はタスクの部分更新内容を表す。
// nilのフィールドは既存の値を維持する。
type TaskPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

// IsEmpty は更新対象のフィールドが1つも無い場合にtrueを返す。
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil
}

// Apply はパッチを適用した新しいTaskを返す。元の値は変更しない。
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	return t
}

package repository

import "errors"

var (
	// ErrNotFound は対象のレコードが存在しないことを表す。
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict は一意制約違反を表す。
	ErrConflict = errors.New("repository: conflict")
)

package domain

import "time"

// Identity は登録済みユーザーアカウントを表す。登録後は変更されない。
type Identity struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Username は一意なユーザー名。
	Username string
	// PasswordHash はbcryptでハッシュ化したパスワード。
	PasswordHash string
	// CreatedAt は登録日時。
	CreatedAt time.Time
}

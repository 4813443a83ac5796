// Package domain はタスク管理バックエンドのドメインモデルとエラー分類を提供する。
//
// Identity と Task は不変の値レコードとして扱い、更新はストア操作が返す
// 新しい値で受け取る。
package domain

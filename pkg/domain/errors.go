package domain

import "errors"

var (
	// ErrValidation はユーザー入力の検証エラーを表します。ネットワーク呼び出しや状態変更は行われません。
	ErrValidation = errors.New("入力内容が不正です")

	// ErrMissingVisualDescription はビジュアル説明が空の下書きパネルを確定しようとした場合のエラーです。
	ErrMissingVisualDescription = errors.New("すべてのパネルに Visual Description を入力してください")
)

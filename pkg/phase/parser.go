package phase

import "strings"

// CharacterDatabaseSeparator はエピソード本文の後に続くキャラクターデータベース更新ブロックの開始を示す固定文字列です。
const CharacterDatabaseSeparator = "📊 CHARACTER DATABASE UPDATE"

// ResponseParser はエピソード執筆の応答を名前付きフィールドに分割します。
type ResponseParser interface {
	ParseEpisode(response string) EpisodeDraft
}

// SeparatorParser は区切り文字列の最後の出現位置で応答を分割します。
type SeparatorParser struct {
	Separator string
}

// DefaultParser は CharacterDatabaseSeparator を使う ResponseParser です。
var DefaultParser ResponseParser = SeparatorParser{Separator: CharacterDatabaseSeparator}

// ParseEpisode は区切りより前を本文、区切り以降をキャラクター更新として返します。
// 区切りが無い場合は応答全体が本文で、キャラクター更新は nil です。
func (p SeparatorParser) ParseEpisode(response string) EpisodeDraft {
	i := strings.LastIndex(response, p.Separator)
	if p.Separator == "" || i < 0 {
		return EpisodeDraft{Script: response}
	}
	update := response[i:]
	return EpisodeDraft{Script: response[:i], CharacterUpdate: &update}
}

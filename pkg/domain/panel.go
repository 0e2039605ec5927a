package domain

import (
	"fmt"
	"strings"
)

// DialogueLine はパネル内の1行のセリフです。Character は名前による参照で、存在チェックは行いません。
type DialogueLine struct {
	Character string `json:"character"`
	Line      string `json:"line"`
}

// ImagePayload は生成された画像データ（Base64）と MIME タイプの組です。
type ImagePayload struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// DataURI は Markdown などに埋め込むための data: URI を返します。
func (p ImagePayload) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MimeType, p.Data)
}

// Panel はコミックの1コマです。教育的な推論フィールドと、ビジュアル・セリフのフィールドを併せ持ちます。
type Panel struct {
	ID                string         `json:"id"`
	Observation       string         `json:"observation"`
	Reasoning         string         `json:"reasoning"`
	Action            string         `json:"action"`
	Expectation       string         `json:"expectation"`
	VisualDescription string         `json:"visualDescription"`
	Caption           string         `json:"caption"`
	Dialogue          []DialogueLine `json:"dialogue"`
	Suggestions       string         `json:"suggestions"`

	// ImageGenerationPrompt は画像生成用に組み立てたプロンプトです。
	ImageGenerationPrompt string `json:"imageGenerationPrompt,omitempty"`
	// Image は生成済みの画像です。
	Image *ImagePayload `json:"image,omitempty"`
}

// PanelField は再生成の対象にできるテキストフィールド名です。
type PanelField string

const (
	FieldObservation       PanelField = "observation"
	FieldReasoning         PanelField = "reasoning"
	FieldAction            PanelField = "action"
	FieldExpectation       PanelField = "expectation"
	FieldVisualDescription PanelField = "visualDescription"
	FieldCaption           PanelField = "caption"
	FieldSuggestions       PanelField = "suggestions"
)

// RegenerableFields は再生成可能なフィールドの一覧です（表示順）。
var RegenerableFields = []PanelField{
	FieldObservation,
	FieldReasoning,
	FieldAction,
	FieldExpectation,
	FieldVisualDescription,
	FieldCaption,
	FieldSuggestions,
}

// ParsePanelField は文字列をフィールド名として解釈します。
func ParsePanelField(s string) (PanelField, error) {
	for _, f := range RegenerableFields {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: 不明なフィールドです: '%s'", ErrValidation, s)
}

// Field はフィールドの現在値を返します。
func (p Panel) Field(f PanelField) string {
	switch f {
	case FieldObservation:
		return p.Observation
	case FieldReasoning:
		return p.Reasoning
	case FieldAction:
		return p.Action
	case FieldExpectation:
		return p.Expectation
	case FieldVisualDescription:
		return p.VisualDescription
	case FieldCaption:
		return p.Caption
	case FieldSuggestions:
		return p.Suggestions
	}
	return ""
}

// WithField は指定フィールドを置き換えたパネルのコピーを返します。
func (p Panel) WithField(f PanelField, value string) Panel {
	switch f {
	case FieldObservation:
		p.Observation = value
	case FieldReasoning:
		p.Reasoning = value
	case FieldAction:
		p.Action = value
	case FieldExpectation:
		p.Expectation = value
	case FieldVisualDescription:
		p.VisualDescription = value
	case FieldCaption:
		p.Caption = value
	case FieldSuggestions:
		p.Suggestions = value
	}
	return p
}

// Summary はストーリー要約に使う一文を返します。
// キャプション、最初のセリフ、観察の順に空でないものを採用し、どれも無ければ空文字なのだ。
func (p Panel) Summary() string {
	if p.Caption != "" {
		return p.Caption
	}
	if len(p.Dialogue) > 0 && p.Dialogue[0].Line != "" {
		return p.Dialogue[0].Line
	}
	return p.Observation
}

// AddDialogueLine は空のセリフ行を追加したコピーを返します。話者は作品の最初のキャラクターです。
func (p Panel) AddDialogueLine(cs Characters) Panel {
	speaker := ""
	if len(cs) > 0 {
		speaker = cs[0].Name
	}
	lines := make([]DialogueLine, len(p.Dialogue), len(p.Dialogue)+1)
	copy(lines, p.Dialogue)
	p.Dialogue = append(lines, DialogueLine{Character: speaker})
	return p
}

// RemoveDialogueLine は指定位置のセリフ行を取り除いたコピーを返します。
func (p Panel) RemoveDialogueLine(index int) (Panel, error) {
	if index < 0 || index >= len(p.Dialogue) {
		return p, fmt.Errorf("%w: セリフ番号 %d は範囲外です", ErrValidation, index)
	}
	lines := make([]DialogueLine, 0, len(p.Dialogue)-1)
	lines = append(lines, p.Dialogue[:index]...)
	p.Dialogue = append(lines, p.Dialogue[index+1:]...)
	return p, nil
}

// Panels はパネルの並びです。
type Panels []Panel

// Index は ID に一致するパネルの位置を返します。見つからない場合は -1 です。
func (ps Panels) Index(id string) int {
	for i, p := range ps {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// MissingVisualDescription はビジュアル説明が空のパネルがあれば true を返します。
func (ps Panels) MissingVisualDescription() bool {
	for _, p := range ps {
		if p.VisualDescription == "" {
			return true
		}
	}
	return false
}

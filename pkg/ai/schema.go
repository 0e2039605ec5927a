package ai

import "google.golang.org/genai"

// PanelArraySchema はコミックのパネル生成で要求する JSON 配列のスキーマです。
func PanelArraySchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	fields := []string{
		"observation", "reasoning", "action", "expectation",
		"visualDescription", "caption", "dialogue", "suggestions",
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"observation":       str("What the clinician notices."),
				"reasoning":         str("Clinical reasoning from the observation."),
				"action":            str("What is done next."),
				"expectation":       str("Expected outcome or what to monitor."),
				"visualDescription": str("Concrete scene description for the illustrator."),
				"caption":           str("Short narration box. May be empty."),
				"suggestions":       str("Corrections of common mistakes or extra teaching points."),
				"dialogue": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"character": str("Name of the speaking character."),
							"line":      str("What the character says."),
						},
						Required: []string{"character", "line"},
					},
				},
			},
			Required:         fields,
			PropertyOrdering: fields,
		},
	}
}

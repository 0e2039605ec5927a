package prompts

const (
	// CinematicTags クオリティ向上のための共通タグ
	CinematicTags = "cinematic composition, high resolution, sharp focus"

	// NegativePanelPrompt 単体パネルでは「文字」や「フキダシ」を排除します
	NegativePanelPrompt = "speech bubble, dialogue balloon, text, letters, watermark, signature, low quality, distorted, bad anatomy, extra fingers, gore"

	// RenderingStyle は共通の画風を定義します。
	RenderingStyle = `### GLOBAL VISUAL STYLE ###
- RENDERING: Clean comic-book lineart, full colour, soft hospital lighting, realistic clinical equipment.
- SETTING: Zenith Teaching Hospital, Lagos, Nigeria. Staff and patients are Nigerian.`

	// panelSystemInstruction は単体パネル生成時の役割定義です。
	panelSystemInstruction = "You are a professional medical comic illustrator. Create a single high-quality panel."
)

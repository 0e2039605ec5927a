package prompts

import (
	"strings"
	"testing"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
)

func testComic() domain.Comic {
	return domain.Comic{
		Subject:    "Obstetrics",
		Topic:      "Postpartum haemorrhage",
		Ward:       "Labour Ward",
		Characters: domain.Characters{{Name: "Dr. Aituma", Description: "Consultant O&G"}, {Name: "Dr. Ese"}},
		StoryState: domain.StoryState{LastPanelSummary: "The placenta is delivered.", CompletedExcerpts: 2},
		Panels:     domain.Panels{{ID: "1"}, {ID: "2"}},
	}
}

func TestTextPromptBuilder_Build(t *testing.T) {
	b, err := NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("NewTextPromptBuilder に失敗しました: %v", err)
	}

	t.Run("パネル生成プロンプトに文脈が埋め込まれること", func(t *testing.T) {
		data := ComicData(testComic())
		data.Excerpt = "Uterine atony is the commonest cause."
		got, err := b.Build(ModePanels, data)
		if err != nil {
			t.Fatalf("Build に失敗しました: %v", err)
		}
		for _, want := range []string{"Postpartum haemorrhage", "Labour Ward", "Dr. Aituma: Consultant O&G", "Panels already drawn: 2", "Uterine atony", "The placenta is delivered."} {
			if !strings.Contains(got, want) {
				t.Errorf("%q が含まれていません", want)
			}
		}
	})

	t.Run("再生成プロンプトに対象フィールドと現在値が含まれること", func(t *testing.T) {
		data := ComicData(testComic())
		data.Panel = domain.Panel{Caption: "Old caption", Dialogue: []domain.DialogueLine{{Character: "Dr. Ese", Line: "Massage the fundus!"}}}
		data.Field = string(domain.FieldCaption)
		data.CurrentValue = "Old caption"
		got, err := b.Build(ModeRegenerate, data)
		if err != nil {
			t.Fatalf("Build に失敗しました: %v", err)
		}
		for _, want := range []string{`"caption"`, "Current value: Old caption", "Dr. Aituma, Dr. Ese", `Dr. Ese says: "Massage the fundus!"`} {
			if !strings.Contains(got, want) {
				t.Errorf("%q が含まれていません", want)
			}
		}
	})

	t.Run("エピソード初期プロンプトに番号・トピック・本文が含まれること", func(t *testing.T) {
		got, err := b.Build(ModeEpisodeInitial, TemplateData{EpisodeNumber: 7, Topic: "Sickle cell", TextbookContent: "HbSS..."})
		if err != nil {
			t.Fatalf("Build に失敗しました: %v", err)
		}
		for _, want := range []string{"Episode Number: 7", "Topic: Sickle cell", "HbSS..."} {
			if !strings.Contains(got, want) {
				t.Errorf("%q が含まれていません", want)
			}
		}
	})

	t.Run("不明なモードはエラーになること", func(t *testing.T) {
		if _, err := b.Build("unknown", TemplateData{}); err == nil {
			t.Error("エラーを期待しました")
		}
	})
}

func TestMasterPrompt(t *testing.T) {
	for _, want := range []string{"📊 CHARACTER DATABASE UPDATE", "Generate panels", "Zenith Teaching Hospital"} {
		if !strings.Contains(MasterPrompt, want) {
			t.Errorf("マスタープロンプトに %q が含まれていません", want)
		}
	}
}

func TestImagePromptBuilder_BuildPanel(t *testing.T) {
	comic := testComic()
	comic.StyleGuidePrompt = "Dr. Aituma wears green scrubs."
	panel := domain.Panel{
		VisualDescription: "A midwife rubs the uterus",
		Action:            "Start oxytocin infusion",
		Expectation:       "Bleeding slows",
		Dialogue:          []domain.DialogueLine{{Character: "Dr. Ese", Line: "Call the consultant"}, {Character: "Dr. Aituma", Line: " "}},
	}

	got := NewImagePromptBuilder("soft watercolor").BuildPanel(panel, comic)

	for _, want := range []string{
		"### STYLE GUIDE ###\nDr. Aituma wears green scrubs.",
		"soft watercolor",
		"- VISUAL: A midwife rubs the uterus",
		"- ACTION: Start oxytocin infusion",
		"- MOOD: Bleeding slows",
		`[Dr. Ese] says "Call the consultant"`,
		"- Dr. Aituma (Consultant O&G)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("%q が含まれていません\n%s", want, got)
		}
	}
	if strings.Contains(got, `[Dr. Aituma] says`) {
		t.Error("空のセリフが含まれています")
	}
	if strings.Index(got, "STYLE GUIDE") > strings.Index(got, "### SCENE ###") {
		t.Error("スタイルガイドはシーンより前に置かれるはずです")
	}
}

func TestEditImagePrompt(t *testing.T) {
	if got := EditImagePrompt("base\n", "make it night"); got != "base\n\n### EDIT INSTRUCTION ###\nmake it night" {
		t.Errorf("got %q", got)
	}
	if got := EditImagePrompt("base", "  "); got != "base" {
		t.Errorf("空の指示では変更しないはずです: %q", got)
	}
}

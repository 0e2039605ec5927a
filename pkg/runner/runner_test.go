package runner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/prompts"
)

type fakeText struct {
	requests []ai.TextRequest
	response string
	err      error
}

func (f *fakeText) GenerateText(_ context.Context, req ai.TextRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.response, f.err
}

type fakeCompleter struct {
	prompts  []string
	response string
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

type fakeImage struct {
	mu        sync.Mutex
	generated []string
	edited    []string
	payload   *domain.ImagePayload
	editErr   error
	err       error
}

func (f *fakeImage) Generate(_ context.Context, prompt string) (*domain.ImagePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, prompt)
	return f.payload, f.err
}

func (f *fakeImage) Edit(_ context.Context, _ domain.ImagePayload, instruction string) (*domain.ImagePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, instruction)
	if f.editErr != nil {
		return nil, f.editErr
	}
	return f.payload, f.err
}

func testComic(t *testing.T) domain.Comic {
	t.Helper()
	c, err := domain.NewComic("c1", domain.ComicInput{
		Subject:        "Obstetrics",
		Topic:          "Postpartum haemorrhage",
		Ward:           "Labour ward",
		Characters:     domain.PickPredefined([]string{"Dr. Aituma", "Dr. Ese"}),
		InitialExcerpt: "PPH is blood loss of 500 ml or more after vaginal delivery.",
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("コミックの作成に失敗しました: %v", err)
	}
	return c
}

func newBuilder(t *testing.T) *prompts.TextPromptBuilder {
	t.Helper()
	b, err := prompts.NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("プロンプトビルダーの生成に失敗しました: %v", err)
	}
	return b
}

const twoPanels = `[
  {"observation":"Pale, tachycardic","reasoning":"Hypovolaemia","action":"Two large-bore cannulas","expectation":"BP stabilises","visualDescription":"Dr. Ese at the bedside","caption":"Minutes matter","dialogue":[{"character":"Dr. Ese","line":"She is bleeding!"}],"suggestions":"Call for help early"},
  {"observation":"Boggy uterus","reasoning":"Atony","action":"Uterine massage","expectation":"Firm uterus","visualDescription":"Close-up of hands","caption":"","suggestions":""}
]`

func TestPanelRunner_Generate(t *testing.T) {
	ctx := context.Background()
	comic := testComic(t)

	t.Run("パネル配列を解析し新しい ID を付けること", func(t *testing.T) {
		fake := &fakeText{response: "```json\n" + twoPanels + "\n```"}
		r := NewPanelRunner(fake, newBuilder(t), "gemini-2.5-flash")
		n := 0
		r.newID = func() string { n++; return fmt.Sprintf("p%d", n) }

		panels, err := r.Generate(ctx, comic, "Management of atonic PPH")
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if len(panels) != 2 {
			t.Fatalf("パネル数: 期待値 2, 実際の値 %d", len(panels))
		}
		if panels[0].ID != "p1" || panels[1].ID != "p2" {
			t.Errorf("ID が不正です: %s, %s", panels[0].ID, panels[1].ID)
		}
		wantDialogue := []domain.DialogueLine{{Character: "Dr. Ese", Line: "She is bleeding!"}}
		if !reflect.DeepEqual(panels[0].Dialogue, wantDialogue) {
			t.Errorf("セリフが不正です: %+v", panels[0].Dialogue)
		}
		if panels[1].Dialogue == nil {
			t.Error("セリフが無いパネルは空スライスであるべきです")
		}

		req := fake.requests[0]
		if req.Schema == nil || len(req.History) != 0 || req.Model != "gemini-2.5-flash" {
			t.Errorf("呼び出し内容が不正です: %+v", req)
		}
		for _, want := range []string{"Management of atonic PPH", "Postpartum haemorrhage", "Labour ward", "Dr. Aituma"} {
			if !strings.Contains(req.Message, want) {
				t.Errorf("プロンプトに %q が含まれていません", want)
			}
		}
	})

	t.Run("抜粋が空なら呼び出さないこと", func(t *testing.T) {
		fake := &fakeText{response: twoPanels}
		r := NewPanelRunner(fake, newBuilder(t), "m")
		if _, err := r.Generate(ctx, comic, "  \n"); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("ErrValidation が返されるはずです: %v", err)
		}
		if len(fake.requests) != 0 {
			t.Error("モデルが呼び出されました")
		}
	})

	invalid := []struct {
		name     string
		response string
	}{
		{name: "オブジェクト", response: `{"panels":[]}`},
		{name: "空配列", response: `[]`},
		{name: "壊れた JSON", response: `[{"observation":`},
		{name: "自由文", response: `Sorry, I cannot help.`},
	}
	for _, tt := range invalid {
		t.Run("不正な応答: "+tt.name, func(t *testing.T) {
			r := NewPanelRunner(&fakeText{response: tt.response}, newBuilder(t), "m")
			if _, err := r.Generate(ctx, comic, "excerpt"); !errors.Is(err, ErrInvalidOutput) {
				t.Errorf("ErrInvalidOutput が返されるはずです: %v", err)
			}
		})
	}

	t.Run("呼び出しの失敗はそのまま伝えること", func(t *testing.T) {
		cause := errors.New("503")
		r := NewPanelRunner(&fakeText{err: cause}, newBuilder(t), "m")
		if _, err := r.Generate(ctx, comic, "excerpt"); !errors.Is(err, cause) {
			t.Errorf("元のエラーが含まれていません: %v", err)
		}
	})
}

func TestRegenerateRunner_Regenerate(t *testing.T) {
	ctx := context.Background()
	comic := testComic(t)
	panel := domain.Panel{ID: "p1", Observation: "old", Caption: "cap"}

	t.Run("応答を前後の空白を除いて書き戻すこと", func(t *testing.T) {
		fake := &fakeCompleter{response: "  Fundus is soft and above the umbilicus.\n"}
		r := NewRegenerateRunner(fake, newBuilder(t))
		got, err := r.Regenerate(ctx, comic, panel, domain.FieldObservation)
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		want := panel
		want.Observation = "Fundus is soft and above the umbilicus."
		if !reflect.DeepEqual(got, want) {
			t.Errorf("期待値 %+v, 実際の値 %+v", want, got)
		}
		if !strings.Contains(fake.prompts[0], `"observation"`) || !strings.Contains(fake.prompts[0], "Current value: old") {
			t.Errorf("プロンプトが不正です: %s", fake.prompts[0])
		}
	})

	t.Run("対象外のフィールドは拒否すること", func(t *testing.T) {
		fake := &fakeCompleter{response: "x"}
		r := NewRegenerateRunner(fake, newBuilder(t))
		got, err := r.Regenerate(ctx, comic, panel, domain.PanelField("dialogue"))
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("ErrValidation が返されるはずです: %v", err)
		}
		if !reflect.DeepEqual(got, panel) || len(fake.prompts) != 0 {
			t.Error("パネルが変更されたかモデルが呼び出されました")
		}
	})

	t.Run("失敗時はパネルを変更しないこと", func(t *testing.T) {
		r := NewRegenerateRunner(&fakeCompleter{err: errors.New("boom")}, newBuilder(t))
		got, err := r.Regenerate(ctx, comic, panel, domain.FieldCaption)
		if err == nil {
			t.Fatal("エラーが返されるはずです")
		}
		if !reflect.DeepEqual(got, panel) {
			t.Errorf("パネルが変更されています: %+v", got)
		}
	})
}

func TestStyleGuideRunner_Ensure(t *testing.T) {
	ctx := context.Background()
	comic := testComic(t)

	t.Run("未設定なら生成すること", func(t *testing.T) {
		fake := &fakeCompleter{response: " Soft watercolour. "}
		got, changed, err := NewStyleGuideRunner(fake, newBuilder(t)).Ensure(ctx, comic, false)
		if err != nil || !changed {
			t.Fatalf("生成されていません: changed=%v err=%v", changed, err)
		}
		if got.StyleGuidePrompt != "Soft watercolour." {
			t.Errorf("スタイルガイドが不正です: %q", got.StyleGuidePrompt)
		}
	})

	t.Run("設定済みなら生成しないこと", func(t *testing.T) {
		comic := comic
		comic.StyleGuidePrompt = "existing"
		fake := &fakeCompleter{response: "new"}
		got, changed, err := NewStyleGuideRunner(fake, newBuilder(t)).Ensure(ctx, comic, false)
		if err != nil || changed || got.StyleGuidePrompt != "existing" || len(fake.prompts) != 0 {
			t.Errorf("既存の値が変更されました: %q changed=%v err=%v", got.StyleGuidePrompt, changed, err)
		}
	})

	t.Run("force なら作り直すこと", func(t *testing.T) {
		comic := comic
		comic.StyleGuidePrompt = "existing"
		got, changed, err := NewStyleGuideRunner(&fakeCompleter{response: "new"}, newBuilder(t)).Ensure(ctx, comic, true)
		if err != nil || !changed || got.StyleGuidePrompt != "new" {
			t.Errorf("作り直されていません: %q changed=%v err=%v", got.StyleGuidePrompt, changed, err)
		}
	})
}

func TestImageRunner(t *testing.T) {
	ctx := context.Background()
	comic := testComic(t)
	comic.StyleGuidePrompt = "Soft watercolour."
	panel := domain.Panel{ID: "p1", VisualDescription: "Dr. Ese checks the fundus", Action: "massage"}
	payload := &domain.ImagePayload{Data: "AAAA", MimeType: "image/png"}

	t.Run("プロンプトを保存して画像を付けること", func(t *testing.T) {
		fake := &fakeImage{payload: payload}
		r := NewImageRunner(fake, prompts.NewImagePromptBuilder(""), 1)
		got, err := r.Generate(ctx, comic, panel)
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if got.Image == nil || got.Image.Data != "AAAA" {
			t.Errorf("画像が付いていません: %+v", got.Image)
		}
		if !strings.Contains(got.ImageGenerationPrompt, "Soft watercolour.") || got.ImageGenerationPrompt != fake.generated[0] {
			t.Errorf("画像プロンプトが不正です: %q", got.ImageGenerationPrompt)
		}
	})

	t.Run("画像が返らなければ ErrNoImage", func(t *testing.T) {
		r := NewImageRunner(&fakeImage{}, prompts.NewImagePromptBuilder(""), 1)
		got, err := r.Generate(ctx, comic, panel)
		if !errors.Is(err, ErrNoImage) || got.Image != nil {
			t.Errorf("ErrNoImage が返されるはずです: %v", err)
		}
	})

	t.Run("編集非対応なら指示付きプロンプトで描き直すこと", func(t *testing.T) {
		fake := &fakeImage{payload: payload, editErr: ai.ErrEditUnsupported}
		r := NewImageRunner(fake, prompts.NewImagePromptBuilder(""), 1)
		withImage := panel
		withImage.Image = &domain.ImagePayload{Data: "OLD", MimeType: "image/png"}

		got, err := r.Edit(ctx, comic, withImage, "make it night time")
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if len(fake.generated) != 1 || !strings.Contains(fake.generated[0], "make it night time") {
			t.Errorf("指示付きプロンプトで生成されていません: %v", fake.generated)
		}
		if got.Image.Data != "AAAA" || !strings.Contains(got.ImageGenerationPrompt, "EDIT INSTRUCTION") {
			t.Errorf("結果が不正です: %+v", got)
		}
	})

	t.Run("編集指示が空なら拒否すること", func(t *testing.T) {
		r := NewImageRunner(&fakeImage{payload: payload}, prompts.NewImagePromptBuilder(""), 1)
		if _, err := r.Edit(ctx, comic, panel, " "); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("ErrValidation が返されるはずです: %v", err)
		}
	})

	t.Run("画像の無いパネルだけをまとめて生成すること", func(t *testing.T) {
		fake := &fakeImage{payload: payload}
		r := NewImageRunner(fake, prompts.NewImagePromptBuilder(""), 2)
		c := comic
		done := panel
		done.ID = "p0"
		done.Image = &domain.ImagePayload{Data: "KEEP", MimeType: "image/png"}
		c.Panels = domain.Panels{done, panel}

		got, err := r.GenerateAll(ctx, c)
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if got[0].Image.Data != "KEEP" || got[1].Image.Data != "AAAA" {
			t.Errorf("結果が不正です: %+v", got)
		}
		if len(fake.generated) != 1 {
			t.Errorf("生成回数: 期待値 1, 実際の値 %d", len(fake.generated))
		}
	})
}

package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"

	"google.golang.org/genai"
)

type fakeModels struct {
	mu       sync.Mutex
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.model, f.contents, f.config = model, contents, config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGenAIText_GenerateText(t *testing.T) {
	ctx := context.Background()

	t.Run("履歴と新しい発話が順に送信されること", func(t *testing.T) {
		fake := &fakeModels{resp: textResponse("proposal")}
		g := newGenAIText(fake, "gemini-2.5-pro", nil)

		got, err := g.GenerateText(ctx, TextRequest{
			SystemInstruction: "master",
			History:           []domain.Turn{{Role: domain.RoleUser, Text: "u1"}, {Role: domain.RoleModel, Text: "m1"}},
			Message:           "u2",
		})
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if got != "proposal" {
			t.Errorf("応答が不正です: %q", got)
		}
		if fake.model != "gemini-2.5-pro" {
			t.Errorf("既定モデルが使われていません: %s", fake.model)
		}

		var roles, texts []string
		for _, c := range fake.contents {
			roles = append(roles, c.Role)
			texts = append(texts, c.Parts[0].Text)
		}
		if !reflect.DeepEqual(roles, []string{"user", "model", "user"}) || !reflect.DeepEqual(texts, []string{"u1", "m1", "u2"}) {
			t.Errorf("送信内容が不正です: roles=%v texts=%v", roles, texts)
		}
		if fake.config.SystemInstruction == nil || fake.config.SystemInstruction.Parts[0].Text != "master" {
			t.Error("システム指示が設定されていません")
		}
		if fake.config.ResponseSchema != nil || fake.config.ResponseMIMEType != "" {
			t.Error("スキーマ無しの呼び出しで JSON 出力が指定されています")
		}
	})

	t.Run("スキーマ指定時は JSON 出力が要求されること", func(t *testing.T) {
		fake := &fakeModels{resp: textResponse("[]")}
		g := newGenAIText(fake, "m", nil)
		schema := &genai.Schema{Type: genai.TypeArray}
		if _, err := g.GenerateText(ctx, TextRequest{Model: "override", Message: "x", Schema: schema}); err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if fake.model != "override" || fake.config.ResponseMIMEType != "application/json" || fake.config.ResponseSchema != schema {
			t.Errorf("設定が不正です: model=%s config=%+v", fake.model, fake.config)
		}
	})

	t.Run("送信エラーはラップして返すこと", func(t *testing.T) {
		cause := errors.New("503 unavailable")
		g := newGenAIText(&fakeModels{err: cause}, "m", nil)
		if _, err := g.GenerateText(ctx, TextRequest{Message: "x"}); !errors.Is(err, cause) {
			t.Errorf("元のエラーを保持していません: %v", err)
		}
	})

	t.Run("空の応答は ErrEmptyResponse になること", func(t *testing.T) {
		g := newGenAIText(&fakeModels{resp: textResponse("  ")}, "m", nil)
		if _, err := g.GenerateText(ctx, TextRequest{Message: "x"}); !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("ErrEmptyResponse を期待しましたが %v でした", err)
		}
	})
}

func TestExtractImage(t *testing.T) {
	t.Run("最初のインライン画像を返すこと", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{Data: []byte("PNGDATA"), MIMEType: "image/png"}},
			}},
		}}}
		got := extractImage(resp)
		want := &domain.ImagePayload{Data: base64.StdEncoding.EncodeToString([]byte("PNGDATA")), MimeType: "image/png"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("期待値 %+v, 実際の値 %+v", want, got)
		}
	})

	t.Run("画像が無ければ nil を返すこと", func(t *testing.T) {
		if got := extractImage(textResponse("sorry, I cannot draw that")); got != nil {
			t.Errorf("nil を期待しましたが %+v でした", got)
		}
		if got := extractImage(nil); got != nil {
			t.Errorf("nil を期待しましたが %+v でした", got)
		}
	})
}

func TestGenAIImage(t *testing.T) {
	ctx := context.Background()

	t.Run("画像が返らない場合は nil かつエラー無しであること", func(t *testing.T) {
		g := newGenAIImage(&fakeModels{resp: textResponse("no image")}, "img", nil)
		got, err := g.Generate(ctx, "a ward")
		if err != nil || got != nil {
			t.Errorf("nil, nil を期待しましたが %+v, %v でした", got, err)
		}
	})

	t.Run("編集では元画像と指示が送信されること", func(t *testing.T) {
		fake := &fakeModels{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{InlineData: &genai.Blob{Data: []byte("new"), MIMEType: "image/png"}}}},
		}}}}
		g := newGenAIImage(fake, "img", nil)
		prior := domain.ImagePayload{Data: base64.StdEncoding.EncodeToString([]byte("old")), MimeType: "image/jpeg"}

		got, err := g.Edit(ctx, prior, "make it night")
		if err != nil || got == nil || got.Data == "" || got.MimeType != "image/png" {
			t.Fatalf("編集結果が不正です: %+v, %v", got, err)
		}
		parts := fake.contents[0].Parts
		if len(parts) != 2 || string(parts[0].InlineData.Data) != "old" || parts[1].Text != "make it night" {
			t.Errorf("送信内容が不正です: %+v", parts)
		}
		if !reflect.DeepEqual(fake.config.ResponseModalities, []string{"TEXT", "IMAGE"}) {
			t.Errorf("ResponseModalities が不正です: %v", fake.config.ResponseModalities)
		}
	})

	t.Run("不正な Base64 の元画像はエラーになること", func(t *testing.T) {
		g := newGenAIImage(&fakeModels{}, "img", nil)
		if _, err := g.Edit(ctx, domain.ImagePayload{Data: "%%%"}, "x"); err == nil {
			t.Error("エラーを期待しました")
		}
	})
}

func TestProxyImage(t *testing.T) {
	pngBytes := []byte("\x89PNG\r\n\x1a\n0000000000")
	b64 := base64.StdEncoding.EncodeToString(pngBytes)

	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        *domain.ImagePayload
		wantErr     string
	}{
		{"生のバイト列", 200, "image/png", string(pngBytes), &domain.ImagePayload{Data: b64, MimeType: "image/png"}, ""},
		{"Base64 テキスト", 200, "text/plain", b64, &domain.ImagePayload{Data: b64, MimeType: "image/png"}, ""},
		{"JSON", 200, "application/json", `{"image":"` + b64 + `","mimeType":"image/webp"}`, &domain.ImagePayload{Data: b64, MimeType: "image/webp"}, ""},
		{"空の応答", 200, "text/plain", "", nil, ""},
		{"JSON エラー", 503, "application/json", `{"error":"Model is loading. Please try again in 20-30 seconds."}`, nil, "Model is loading"},
		{"Base64 ではないテキスト", 200, "text/plain", "<html>oops</html>", nil, "Base64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
					t.Errorf("想定外のリクエストです: %s %s", r.Method, r.Header.Get("Content-Type"))
				}
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := NewProxyImage(srv.URL, 5*time.Second, nil).Generate(context.Background(), "a ward")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("%q を含むエラーを期待しましたが %v でした", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("期待値 %+v, 実際の値 %+v", tt.want, got)
			}
		})
	}

	t.Run("上限を超える応答はエラーになること", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		}))
		defer srv.Close()

		p := NewProxyImage(srv.URL, 5*time.Second, nil)
		p.maxBytes = int64(len(pngBytes) - 1)
		if _, err := p.Generate(context.Background(), "a ward"); !errors.Is(err, ErrResponseTooLarge) {
			t.Errorf("ErrResponseTooLarge を期待しましたが %v でした", err)
		}

		p.maxBytes = int64(len(pngBytes))
		if _, err := p.Generate(context.Background(), "a ward"); err != nil {
			t.Errorf("上限ちょうどの応答は受け付けるはずです: %v", err)
		}
	})

	t.Run("エラー本文はマルチバイト文字の途中で切らないこと", func(t *testing.T) {
		body := strings.Repeat("あ", 300)
		got := truncateString(body, 200)
		if want := strings.Repeat("あ", 200) + "..."; got != want {
			t.Errorf("切り詰め結果が不正です: %d 文字", len([]rune(got)))
		}
	})

	t.Run("編集は未対応であること", func(t *testing.T) {
		_, err := NewProxyImage("http://unused", time.Second, nil).Edit(context.Background(), domain.ImagePayload{}, "x")
		if !errors.Is(err, ErrEditUnsupported) {
			t.Errorf("ErrEditUnsupported を期待しましたが %v でした", err)
		}
	})
}

type countingImage struct {
	calls  atomic.Int32
	result *domain.ImagePayload
	err    error
	delay  time.Duration
}

func (c *countingImage) Generate(context.Context, string) (*domain.ImagePayload, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.result, c.err
}

func (c *countingImage) Edit(context.Context, domain.ImagePayload, string) (*domain.ImagePayload, error) {
	c.calls.Add(1)
	return c.result, c.err
}

func TestCachedImage(t *testing.T) {
	ctx := context.Background()

	t.Run("同じプロンプトは1回だけ呼び出されること", func(t *testing.T) {
		next := &countingImage{result: &domain.ImagePayload{Data: "AA==", MimeType: "image/png"}, delay: 20 * time.Millisecond}
		c := NewCachedImage(next, time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if p, err := c.Generate(ctx, "same"); err != nil || p == nil {
					t.Errorf("予期しない結果: %+v, %v", p, err)
				}
			}()
		}
		wg.Wait()
		if _, err := c.Generate(ctx, "same"); err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if n := next.calls.Load(); n != 1 {
			t.Errorf("呼び出しは1回のはずですが %d 回でした", n)
		}
	})

	t.Run("画像無しとエラーはキャッシュされないこと", func(t *testing.T) {
		next := &countingImage{}
		c := NewCachedImage(next, time.Minute)
		for i := 0; i < 2; i++ {
			if p, err := c.Generate(ctx, "nothing"); p != nil || err != nil {
				t.Fatalf("nil, nil を期待しましたが %+v, %v でした", p, err)
			}
		}
		next.err = errors.New("boom")
		if _, err := c.Generate(ctx, "nothing"); err == nil {
			t.Error("エラーを期待しました")
		}
		if n := next.calls.Load(); n != 3 {
			t.Errorf("呼び出しは3回のはずですが %d 回でした", n)
		}
	})

	t.Run("返されたペイロードを変更してもキャッシュに影響しないこと", func(t *testing.T) {
		next := &countingImage{result: &domain.ImagePayload{Data: "AA==", MimeType: "image/png"}}
		c := NewCachedImage(next, time.Minute)
		p, _ := c.Generate(ctx, "x")
		p.Data = "mutated"
		again, _ := c.Generate(ctx, "x")
		if again.Data != "AA==" {
			t.Errorf("キャッシュが変更されています: %+v", again)
		}
	})

	t.Run("描き直しの指示ではキャッシュを使わず結果を上書きすること", func(t *testing.T) {
		next := &countingImage{result: &domain.ImagePayload{Data: "first", MimeType: "image/png"}}
		c := NewCachedImage(next, time.Minute)
		if _, err := c.Generate(ctx, "panel"); err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}

		next.result = &domain.ImagePayload{Data: "second", MimeType: "image/png"}
		fresh, err := c.Generate(WithFreshImage(ctx), "panel")
		if err != nil || fresh.Data != "second" {
			t.Fatalf("新しい画像を期待しましたが %+v, %v でした", fresh, err)
		}
		if n := next.calls.Load(); n != 2 {
			t.Errorf("呼び出しは2回のはずですが %d 回でした", n)
		}
		cached, _ := c.Generate(ctx, "panel")
		if cached.Data != "second" {
			t.Errorf("キャッシュが上書きされていません: %+v", cached)
		}
	})

	t.Run("先行する呼び出し元のキャンセルで共有呼び出しが失敗しないこと", func(t *testing.T) {
		next := &countingImage{result: &domain.ImagePayload{Data: "AA==", MimeType: "image/png"}, delay: 50 * time.Millisecond}
		c := NewCachedImage(next, time.Minute)

		first, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			_, err := c.Generate(first, "shared")
			errCh <- err
		}()
		time.Sleep(10 * time.Millisecond)
		cancel()

		p, err := c.Generate(ctx, "shared")
		if err != nil || p == nil || p.Data != "AA==" {
			t.Fatalf("予期しない結果: %+v, %v", p, err)
		}
		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Errorf("キャンセルした呼び出し元には context.Canceled を期待しましたが %v でした", err)
		}
		if n := next.calls.Load(); n != 1 {
			t.Errorf("呼び出しは1回のはずですが %d 回でした", n)
		}
	})
}

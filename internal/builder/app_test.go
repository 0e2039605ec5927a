package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/shouni/go-zenith-comic-kit/internal/config"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Generation.RateIntervalMillis = 0
	return &cfg
}

func TestNewAppContext(t *testing.T) {
	ctx := context.Background()

	t.Run("作成した作品が再起動後も残る", func(t *testing.T) {
		cfg := testConfig(t)

		app, err := NewAppContext(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ep, err := app.Manager.CreateEpisode(ctx, domain.EpisodeInput{Topic: "Sepsis", TextbookContent: "..."})
		if err != nil {
			t.Fatalf("CreateEpisode: %v", err)
		}
		if err := app.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		reopened, err := NewAppContext(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer reopened.Close()

		got, err := reopened.Manager.Episodes().Find(ep.ID)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got.Topic != "Sepsis" {
			t.Errorf("Topic = %q", got.Topic)
		}
	})

	t.Run("二重に開くと ErrLocked", func(t *testing.T) {
		cfg := testConfig(t)
		app, err := NewAppContext(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer app.Close()

		if _, err := NewAppContext(ctx, cfg, nil); !errors.Is(err, store.ErrLocked) {
			t.Errorf("err = %v, want ErrLocked", err)
		}
	})

	t.Run("設定なしはエラー", func(t *testing.T) {
		if _, err := NewAppContext(ctx, nil, nil); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

package collection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/store"
)

// KindComic は変更通知に載せるコミックの種別名です。
const KindComic = "comic"

// Comics はコミック一覧の Manager です。
type Comics struct {
	*Manager[domain.Comic]
	now func() time.Time
}

// NewComics は KV からコミック一覧を読み込みます。
func NewComics(ctx context.Context, kv store.KV, opts ...Option[domain.Comic]) *Comics {
	coll := store.NewCollection[domain.Comic](kv, store.ComicsKey)
	return &Comics{
		Manager: NewManager(ctx, KindComic, coll, opts...),
		now:     time.Now,
	}
}

// CreateComic は入力を検証してコミックを作成し、保存します。
func (c *Comics) CreateComic(ctx context.Context, in domain.ComicInput) (domain.Comic, error) {
	comic, err := domain.NewComic(uuid.NewString(), in, c.now())
	if err != nil {
		return domain.Comic{}, err
	}
	return c.Create(ctx, comic)
}

package collection

import (
	"cmp"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/store"
)

// KindEpisode は変更通知に載せるエピソードの種別名です。
const KindEpisode = "episode"

// Episodes はエピソード一覧の Manager です。一覧は常に episodeNumber の昇順に保たれます。
type Episodes struct {
	*Manager[domain.Episode]
	now func() time.Time
}

// NewEpisodes は KV からエピソード一覧を読み込みます。
func NewEpisodes(ctx context.Context, kv store.KV, opts ...Option[domain.Episode]) *Episodes {
	coll := store.NewCollection[domain.Episode](kv, store.EpisodesKey)
	opts = append([]Option[domain.Episode]{WithSort(byEpisodeNumber)}, opts...)
	return &Episodes{
		Manager: NewManager(ctx, KindEpisode, coll, opts...),
		now:     time.Now,
	}
}

func byEpisodeNumber(a, b domain.Episode) int {
	return cmp.Compare(a.EpisodeNumber, b.EpisodeNumber)
}

// NextEpisodeNumber は既存の最大番号 + 1 を返します。空なら 1 なのだ。
func NextEpisodeNumber(eps []domain.Episode) int {
	maxNum := 0
	for _, e := range eps {
		maxNum = max(maxNum, e.EpisodeNumber)
	}
	return maxNum + 1
}

// CreateEpisode は次の番号を割り当ててエピソードを作成し、保存します。
func (e *Episodes) CreateEpisode(ctx context.Context, in domain.EpisodeInput) (domain.Episode, error) {
	return e.CreateWith(ctx, func(current []domain.Episode) (domain.Episode, error) {
		return domain.NewEpisode(uuid.NewString(), NextEpisodeNumber(current), in, e.now())
	})
}

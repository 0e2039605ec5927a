package workflow

import (
	"context"
	"slices"
	"sync"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/store"
)

// DraftsKey は確定前の下書きパネルを保存するキーです。コミック一覧とは別に保存するのだ。
const DraftsKey = "zenith_comic_drafts"

// DraftSet は1つのコミックに対する確定前の下書きです。
type DraftSet struct {
	ComicID string        `json:"comicId"`
	Excerpt string        `json:"excerpt"`
	Panels  domain.Panels `json:"panels"`
}

// Drafts はコミックごとの下書きパネルを保持します。
// 確定または破棄されるまでコミック本体には含まれません。
type Drafts struct {
	coll *store.Collection[DraftSet]

	mu   sync.Mutex
	sets []DraftSet
}

// NewDrafts は KV から下書きを読み込みます。
func NewDrafts(ctx context.Context, kv store.KV) *Drafts {
	coll := store.NewCollection[DraftSet](kv, DraftsKey)
	return &Drafts{coll: coll, sets: coll.Load(ctx)}
}

// Get はコミックの下書きを返します。
func (d *Drafts) Get(comicID string) (DraftSet, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.index(comicID); i >= 0 {
		set := d.sets[i]
		set.Panels = slices.Clone(set.Panels)
		return set, true
	}
	return DraftSet{}, false
}

// Put はコミックの下書きを丸ごと置き換えて保存します。
func (d *Drafts) Put(ctx context.Context, set DraftSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set.Panels = slices.Clone(set.Panels)
	if i := d.index(set.ComicID); i >= 0 {
		d.sets[i] = set
	} else {
		d.sets = append(d.sets, set)
	}
	d.coll.Save(ctx, d.sets)
}

// Delete はコミックの下書きを破棄します。
func (d *Drafts) Delete(ctx context.Context, comicID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.index(comicID)
	if i < 0 {
		return
	}
	d.sets = slices.Delete(d.sets, i, i+1)
	d.coll.Save(ctx, d.sets)
}

// Clear はすべての下書きを破棄します。
func (d *Drafts) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sets = []DraftSet{}
	return d.coll.Save(ctx, d.sets)
}

func (d *Drafts) index(comicID string) int {
	return slices.IndexFunc(d.sets, func(s DraftSet) bool { return s.ComicID == comicID })
}

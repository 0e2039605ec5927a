package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// imageCallTimeout は共有された1回の画像生成呼び出しに許す時間です。
const imageCallTimeout = 5 * time.Minute

type freshImageKey struct{}

// WithFreshImage はキャッシュ済みの結果を使わずに画像を生成し直すよう指示したコンテキストを返します。
// 生成し直した結果は以降の呼び出しのためにキャッシュへ上書きされます。
func WithFreshImage(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshImageKey{}, true)
}

func wantsFreshImage(ctx context.Context) bool {
	v, _ := ctx.Value(freshImageKey{}).(bool)
	return v
}

// CachedImage は同じプロンプトに対する画像生成結果をキャッシュする ImageGenerator のデコレーターです。
// 同時に届いた同一リクエストは singleflight で1回の呼び出しにまとめるのだ。
type CachedImage struct {
	next  ImageGenerator
	cache *cache.Cache
	group singleflight.Group
}

// NewCachedImage は CachedImage を生成します。
func NewCachedImage(next ImageGenerator, ttl time.Duration) *CachedImage {
	return &CachedImage{
		next:  next,
		cache: cache.New(ttl, ttl*2),
	}
}

// Generate はキャッシュを確認し、無ければ下位の ImageGenerator を呼び出します。
func (c *CachedImage) Generate(ctx context.Context, prompt string) (*domain.ImagePayload, error) {
	return c.do(ctx, cacheKey("generate", prompt), func(callCtx context.Context) (*domain.ImagePayload, error) {
		return c.next.Generate(callCtx, prompt)
	})
}

// Edit は元画像と指示の組をキーにキャッシュします。
func (c *CachedImage) Edit(ctx context.Context, prior domain.ImagePayload, instruction string) (*domain.ImagePayload, error) {
	return c.do(ctx, cacheKey("edit", prior.MimeType, prior.Data, instruction), func(callCtx context.Context) (*domain.ImagePayload, error) {
		return c.next.Edit(callCtx, prior, instruction)
	})
}

func (c *CachedImage) do(ctx context.Context, key string, call func(context.Context) (*domain.ImagePayload, error)) (*domain.ImagePayload, error) {
	if wantsFreshImage(ctx) {
		p, err := call(ctx)
		if err != nil {
			return nil, err
		}
		if p != nil {
			c.cache.SetDefault(key, p)
		}
		return clonePayload(p), nil
	}

	if v, ok := c.cache.Get(key); ok {
		if p, ok := v.(*domain.ImagePayload); ok {
			return clonePayload(p), nil
		}
	}

	// 共有された呼び出しは特定の呼び出し元のキャンセルに巻き込まれないよう切り離し、各呼び出し元は自分のコンテキストで待つ。
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), imageCallTimeout)
		defer cancel()
		p, err := call(callCtx)
		if err != nil {
			return nil, err
		}
		// 画像が得られなかった結果はキャッシュしない
		if p != nil {
			c.cache.SetDefault(key, p)
		}
		return p, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Val == nil {
		return nil, nil
	}

	p, ok := res.Val.(*domain.ImagePayload)
	if !ok {
		return nil, fmt.Errorf("unexpected return type from singleflight: %T", res.Val)
	}
	return clonePayload(p), nil
}

func clonePayload(p *domain.ImagePayload) *domain.ImagePayload {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func cacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

package publisher

import (
	"encoding/json"
	"fmt"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
)

// JSON は作品をインデント幅 2 の JSON に変換します。
func JSON[T domain.Work](work T) ([]byte, error) {
	data, err := json.MarshalIndent(work, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("JSON への変換に失敗しました: %w", err)
	}
	return data, nil
}

// ImportComic は JSON エクスポートからコミックを復元します。
func ImportComic(data []byte) (domain.Comic, error) {
	c, err := importWork[domain.Comic](data)
	if err != nil {
		return c, err
	}
	if c.Panels == nil {
		c.Panels = domain.Panels{}
	}
	return c, nil
}

// ImportEpisode は JSON エクスポートからエピソードを復元します。
func ImportEpisode(data []byte) (domain.Episode, error) {
	e, err := importWork[domain.Episode](data)
	if err != nil {
		return e, err
	}
	if e.History == nil {
		e.History = []domain.Turn{}
	}
	return e, nil
}

func importWork[T domain.Work](data []byte) (T, error) {
	var w T
	if err := json.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("%w: JSON の解析に失敗しました: %v", domain.ErrValidation, err)
	}
	if w.WorkID() == "" {
		return w, fmt.Errorf("%w: id は必須です", domain.ErrValidation)
	}
	return w, nil
}

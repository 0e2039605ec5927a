package domain

// Work は Comic と Episode に共通する、コレクションの最上位エンティティです。
type Work interface {
	Comic | Episode
	WorkID() string
}

// WorkID は Comic の識別子を返します。
func (c Comic) WorkID() string { return c.ID }

// WorkID は Episode の識別子を返します。
func (e Episode) WorkID() string { return e.ID }

package rubric

import "github.com/pavelanni/examdraft/internal/memo"

// Cache memoizes Parse by the exact input text. Callers get their own copy of
// the cached record set.
type Cache struct {
	memo *memo.Cache[*RecordSet]
}

// NewCache creates a parse cache holding at most size inputs.
func NewCache(size int) *Cache {
	return &Cache{memo: memo.New[*RecordSet](size)}
}

// Parse behaves like the package-level Parse.
func (c *Cache) Parse(text string) (*RecordSet, error) {
	rs, err := c.memo.Do([]byte(text), func() (*RecordSet, error) {
		return Parse(text)
	})
	return rs.Clone(), err
}

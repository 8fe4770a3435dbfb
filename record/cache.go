package record

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quartzledger/quartz/types"
)

// Cache is the deduplication record cache: finalized records are keyed by
// transaction id so a replayed envelope can be rejected without executing its
// handler again.
type Cache struct {
	records *lru.Cache[string, *types.TransactionRecord]
}

func NewCache(size int) (*Cache, error) {
	c, err := lru.New[string, *types.TransactionRecord](size)
	if err != nil {
		return nil, fmt.Errorf("creating record cache: %w", err)
	}
	return &Cache{records: c}, nil
}

// IsDuplicate reports whether a record for the given transaction id has
// already been externalized.
func (c *Cache) IsDuplicate(txID types.TransactionID) bool {
	return c.records.Contains(string(txID.Key()))
}

func (c *Cache) Get(txID types.TransactionID) (*types.TransactionRecord, bool) {
	return c.records.Get(string(txID.Key()))
}

// Put registers a finalized record. Only user records take part in
// deduplication; child records carry synthetic nonces and are never resubmitted.
func (c *Cache) Put(rec *types.TransactionRecord) {
	c.records.Add(string(rec.TransactionID.Key()), rec)
}

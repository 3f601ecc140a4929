package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const defaultBalanceTTL = 5 * time.Second

// BalanceCache stores recently computed balances for the read endpoints.
// The spend path never consults it; reservations always sum the ledger
// inside their own transaction.
type BalanceCache interface {
	GetBalance(customerID snowflake.ID) (int64, bool)
	SetBalance(customerID snowflake.ID, balance int64)
	Invalidate(customerID snowflake.ID)
}

type balanceCache struct {
	balances Cache[snowflake.ID, int64]
	ttl      time.Duration
}

func NewBalanceCache() BalanceCache {
	return &balanceCache{
		balances: NewTTLCache[snowflake.ID, int64](),
		ttl:      defaultBalanceTTL,
	}
}

func (c *balanceCache) GetBalance(customerID snowflake.ID) (int64, bool) {
	return c.balances.Get(customerID)
}

func (c *balanceCache) SetBalance(customerID snowflake.ID, balance int64) {
	if customerID == 0 {
		return
	}
	c.balances.Set(customerID, balance, c.ttl)
}

func (c *balanceCache) Invalidate(customerID snowflake.ID) {
	c.balances.Delete(customerID)
}

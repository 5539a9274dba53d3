package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-sales/internal/logger"
	"ms-sales/internal/models"
)

const (
	keyPrefix     = "credit_status:"
	generationKey = "credit_status:generation"
)

type entry struct {
	TicketTypeID      int64   `json:"id"`
	Category          string  `json:"category"`
	Subcategory       string  `json:"subcategory"`
	Price             float64 `json:"price"`
	Archived          bool    `json:"archived"`
	CreditAccountID   *int64  `json:"credit_account_id,omitempty"`
	CreditAccountName *string `json:"credit_account_name,omitempty"`
}

// CreditStatusCache keeps the resolved credit linkage of ticket types. Entries
// live under the current generation; Invalidate moves to the next one and the
// old entries expire with their TTL. A nil cache misses every lookup.
type CreditStatusCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewCreditStatusCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *CreditStatusCache {
	return &CreditStatusCache{Client: client, TTL: ttl, Logger: log}
}

func key(generation, typeID int64) string {
	return keyPrefix + "g" + strconv.FormatInt(generation, 10) + ":type:" + strconv.FormatInt(typeID, 10)
}

func (c *CreditStatusCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.Client.Get(ctx, generationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("credit status cache generation: %w", err)
	}
	return gen, nil
}

// GetMany returns the cached rows, the ids that were not cached and the
// generation they were read under. Rows loaded for the misses go back
// through SetMany with that generation.
func (c *CreditStatusCache) GetMany(ctx context.Context, typeIDs []int64) (map[int64]models.TicketTypeCredit, []int64, int64, error) {
	hits := make(map[int64]models.TicketTypeCredit, len(typeIDs))
	if c == nil || c.Client == nil || len(typeIDs) == 0 {
		return hits, typeIDs, 0, nil
	}

	gen, err := c.generation(ctx)
	if err != nil {
		return hits, typeIDs, 0, err
	}
	keys := make([]string, len(typeIDs))
	for i, id := range typeIDs {
		keys[i] = key(gen, id)
	}
	values, err := c.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return hits, typeIDs, gen, fmt.Errorf("credit status cache get: %w", err)
	}

	var misses []int64
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, typeIDs[i])
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			c.Logger.Warn("REDIS", fmt.Sprintf("Dropping unreadable cache entry %s: %v", keys[i], err))
			misses = append(misses, typeIDs[i])
			continue
		}
		hits[typeIDs[i]] = models.TicketTypeCredit{
			TicketTypeID:      e.TicketTypeID,
			Category:          e.Category,
			Subcategory:       e.Subcategory,
			Price:             e.Price,
			Archived:          e.Archived,
			CreditAccountID:   e.CreditAccountID,
			CreditAccountName: e.CreditAccountName,
		}
	}
	return hits, misses, gen, nil
}

// SetMany stores rows read under generation. Nothing is written once the
// cache has been invalidated since, so a lookup that raced a link change
// cannot reinstate what it read.
func (c *CreditStatusCache) SetMany(ctx context.Context, generation int64, rows map[int64]models.TicketTypeCredit) error {
	if c == nil || c.Client == nil || len(rows) == 0 {
		return nil
	}
	current, err := c.generation(ctx)
	if err != nil {
		return err
	}
	if current != generation {
		return nil
	}
	pipe := c.Client.Pipeline()
	for id, row := range rows {
		raw, err := json.Marshal(entry{
			TicketTypeID:      row.TicketTypeID,
			Category:          row.Category,
			Subcategory:       row.Subcategory,
			Price:             row.Price,
			Archived:          row.Archived,
			CreditAccountID:   row.CreditAccountID,
			CreditAccountName: row.CreditAccountName,
		})
		if err != nil {
			return err
		}
		pipe.Set(ctx, key(generation, id), raw, c.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("credit status cache set: %w", err)
	}
	return nil
}

// Invalidate retires every cached entry. Called whenever a category link
// changes.
func (c *CreditStatusCache) Invalidate(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return nil
	}
	gen, err := c.Client.Incr(ctx, generationKey).Result()
	if err != nil {
		return fmt.Errorf("credit status cache invalidate: %w", err)
	}
	c.Logger.Info("REDIS", fmt.Sprintf("Credit status cache moved to generation %d", gen))
	return nil
}

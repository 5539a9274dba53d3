package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is owned by the user-management screens; the sales core only reads it
// to show who sold a ticket.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

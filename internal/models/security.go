package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenSecurity is the vetting report written after pair creation:
// factory provenance plus holder concentration. Nil pointers mean the
// signal could not be determined for this denom.
type TokenSecurity struct {
	TokenID        int64            `json:"token_id"`
	Creator        *string          `json:"creator,omitempty"`
	Mintable       *bool            `json:"mintable,omitempty"`
	HoldersCount   int64            `json:"holders_count"`
	TopHolderShare *decimal.Decimal `json:"top_holder_share,omitempty"`
	Top10Share     *decimal.Decimal `json:"top10_share,omitempty"`
	CheckedAt      time.Time        `json:"checked_at"`
}

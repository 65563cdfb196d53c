package entity

import (
	"encoding/json"
	"time"
)

// Transaction 账本流水，只追加，由账本签发 ID
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"figma_user_id"`
	Delta       float64         `json:"delta"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

package model

import "time"

// LearnedPattern maps a normalized merchant string to a category for one family.
type LearnedPattern struct {
	CreatedAt          time.Time `json:"created_at"`
	ID                 string    `json:"id"`
	FamilyID           string    `json:"family_id"`
	CategoryID         string    `json:"category_id"`
	MerchantName       string    `json:"merchant_name"`
	NormalizedMerchant string    `json:"normalized_merchant"`
}

package model

// AutoCategorization is one provider answer for one transaction.
// A nil CategoryName means the provider declined to categorize it.
type AutoCategorization struct {
	CategoryName  *string
	Confidence    *float64
	TransactionID string
}

package model

import "time"

// CategorizationFeedback is an audit row written for every approve or reject.
type CategorizationFeedback struct {
	CreatedAt     time.Time
	ID            string
	FamilyID      string
	TransactionID string
	CategoryID    string
	CategoryName  string
	Outcome       FeedbackType
	Confidence    float64
}

// CategoryAccuracy is the approval rate of AI suggestions for one category.
type CategoryAccuracy struct {
	CategoryID   string
	CategoryName string
	Approved     int
	Total        int
}

// Rate returns the approved share, or 0 when nothing has been reviewed.
func (a CategoryAccuracy) Rate() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.Approved) / float64(a.Total)
}

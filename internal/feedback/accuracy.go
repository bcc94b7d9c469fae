package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/thinkdifferentdot/maybe/internal/model"
)

// Window is the look-back period of an accuracy report.
type Window string

// Accuracy windows.
const (
	Window7Days   Window = "7d"
	Window30Days  Window = "30d"
	WindowAllTime Window = "all"
)

// ParseWindow accepts 7d, 30d and all, plus the spelled-out forms.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "7d", "7_days", "week":
		return Window7Days, nil
	case "", "30d", "30_days", "month":
		return Window30Days, nil
	case "all", "all_time":
		return WindowAllTime, nil
	default:
		return "", fmt.Errorf("unknown accuracy window %q (want 7d, 30d or all)", s)
	}
}

// Since returns the start of the window relative to now, or nil for all time.
func (w Window) Since(now time.Time) *time.Time {
	var since time.Time
	switch w {
	case Window7Days:
		since = now.AddDate(0, 0, -7)
	case Window30Days:
		since = now.AddDate(0, 0, -30)
	default:
		return nil
	}
	return &since
}

// Accuracy reports per-category approval rates of AI suggestions within window.
func (h *Handler) Accuracy(ctx context.Context, familyID string, window Window) ([]model.CategoryAccuracy, error) {
	accuracy, err := h.storage.GetCategoryAccuracy(ctx, familyID, window.Since(h.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to compute accuracy: %w", err)
	}
	return accuracy, nil
}

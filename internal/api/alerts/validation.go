package alerts

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/good-yellow-bee/alertboard/internal/models"
)

const maxListLimit = 500

// validateText rejects blank and oversized alert text. The text itself is
// stored as given.
func validateText(text string) error {
	if models.IsBlankText(text) {
		return fmt.Errorf("text is required")
	}
	if n := utf8.RuneCountInString(text); n > models.MaxAlertTextLength {
		return fmt.Errorf("text must be at most %d characters (got %d)", models.MaxAlertTextLength, n)
	}
	return nil
}

// parseLimit reads the optional ?limit= query value.
func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxListLimit)
	}
	return n, nil
}

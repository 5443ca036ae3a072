package views

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tgienger/clientboard/internal/synchronizer"
)

// clamp returns val clamped between minVal and maxVal
func clamp(val, minVal, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// IntentDone reports the outcome of an intent sent to the synchronizer
type IntentDone struct {
	Label string
	Err   error
}

// OpenTask asks the app to show the detail view for a task
type OpenTask struct {
	ID string
}

// OpenChat asks the app to show the chat view
type OpenChat struct{}

// BackToBoard returns from a detail or chat view
type BackToBoard struct{}

// intent runs fn off the UI goroutine and reports its outcome
func intent(label string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return IntentDone{Label: label, Err: fn()}
	}
}

// Describe turns an intent error into a status bar message
func Describe(err error) string {
	var denied *synchronizer.DeniedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &denied):
		return fmt.Sprintf("Not allowed: %s", denied.Reason)
	case errors.Is(err, synchronizer.ErrPersistenceUnavailable):
		return "Could not save. Your change was rolled back."
	case errors.Is(err, synchronizer.ErrNotLoggedIn):
		return "Log in first"
	case errors.Is(err, synchronizer.ErrInvalidInput):
		return strings.TrimPrefix(err.Error(), synchronizer.ErrInvalidInput.Error()+": ")
	default:
		return err.Error()
	}
}

// progressBar renders pct as a fixed width bar
func progressBar(pct, width int) string {
	width = max(width, 4)
	filled := clamp(pct, 0, 100) * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatTimestamp(ms int64) string {
	return time.UnixMilli(ms).Format("Jan 2, 3:04 PM")
}

// truncate shortens s to width cells, marking the cut with an ellipsis
func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

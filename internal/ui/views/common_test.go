package views

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/policy"
	"github.com/tgienger/clientboard/internal/synchronizer"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{
			"denied",
			&synchronizer.DeniedError{Action: policy.ActionApprove, Role: models.RoleTeam, Reason: policy.ReasonWrongRole},
			"Not allowed: role not permitted",
		},
		{
			"persistence",
			fmt.Errorf("%w: %w", synchronizer.ErrPersistenceUnavailable, errors.New("store down")),
			"Could not save. Your change was rolled back.",
		},
		{
			"invalid input",
			fmt.Errorf("%w: %s", synchronizer.ErrInvalidInput, "title is required"),
			"title is required",
		},
		{"not logged in", synchronizer.ErrNotLoggedIn, "Log in first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.err); got != tt.want {
				t.Fatalf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct, width int
		want       string
	}{
		{0, 4, "░░░░"},
		{50, 4, "██░░"},
		{100, 4, "████"},
		{150, 4, "████"},
		{25, 2, "█░░░"}, // width floors at 4
	}
	for _, tt := range tests {
		if got := progressBar(tt.pct, tt.width); got != tt.want {
			t.Errorf("progressBar(%d, %d) = %q, want %q", tt.pct, tt.width, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Homepage Hero Animation", 10); got != "Homepage …" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}

package views

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tgienger/clientboard/internal/db"
	"github.com/tgienger/clientboard/internal/gateway"
	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/synchronizer"
)

func newTestSync(t *testing.T) *synchronizer.Synchronizer {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return synchronizer.New(gateway.New(store, nil, gateway.Options{}), nil, synchronizer.Options{InstanceID: "tab-view"})
}

func TestBoardView_CardAndHelp(t *testing.T) {
	sync := newTestSync(t)
	ctx := context.Background()
	if err := sync.Login(ctx, models.RoleTeam, "Alex"); err != nil {
		t.Fatal(err)
	}
	if _, err := sync.AddTask(ctx, "Landing page", "", models.PriorityHigh, "Web"); err != nil {
		t.Fatal(err)
	}

	v := NewBoardView(ctx, sync)
	v.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := v.View()
	for _, want := range []string{"Landing page", "High", "n new", "<> move"} {
		if !strings.Contains(view, want) {
			t.Fatalf("board missing %q:\n%s", want, view)
		}
	}

	if err := sync.Login(ctx, models.RoleClient, "Sarah"); err != nil {
		t.Fatal(err)
	}
	v.SetSnapshot(sync.Snapshot())
	view = v.View()
	if strings.Contains(view, "<> move") {
		t.Fatalf("client help should not offer moves:\n%s", view)
	}
	if !strings.Contains(view, "n new") {
		t.Fatalf("client help should offer new tasks:\n%s", view)
	}
}

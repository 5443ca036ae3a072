package synchronizer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tgienger/clientboard/internal/gateway"
	"github.com/tgienger/clientboard/internal/models"
)

// Seed fills an empty store with a demonstration board and reconciles it.
// It does nothing when tasks already exist. Demo records carry fixed ids, so
// instances seeding the same store at once upsert the same records.
func (s *Synchronizer) Seed(ctx context.Context) (int, error) {
	var existing int
	err := s.retry(ctx, func(ctx context.Context) error {
		var err error
		existing, err = s.gw.Count(ctx, gateway.CollectionTasks)
		return err
	})
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	written := 0
	for _, t := range demoTasks(s.now()) {
		_, err := s.gw.Read(ctx, gateway.CollectionTasks, t.ID)
		switch {
		case err == nil:
			// Another instance got here first.
			continue
		case !errors.Is(err, gateway.ErrNotFound):
			return written, err
		}
		data, err := models.EncodeTask(t)
		if err != nil {
			return written, err
		}
		if _, err := s.write(ctx, gateway.CollectionTasks, t.ID, data); err != nil {
			return written, err
		}
		written++
	}
	s.log.Info("seeded demo board", zap.Int("tasks", written))

	if _, err := s.Poll(ctx); err != nil {
		return written, err
	}
	return written, nil
}

func demoTasks(now time.Time) []models.Task {
	day := 24 * time.Hour
	ms := now.UnixMilli()
	comment := func(id, author string, role models.Role, text string, ago time.Duration) models.Comment {
		return models.Comment{ID: id, Author: author, Role: role, Text: text, Timestamp: now.Add(-ago).UnixMilli()}
	}

	design := []models.Subtask{
		{ID: "demo-design-1", Text: "Color palette refinement", Completed: true},
		{ID: "demo-design-2", Text: "Typography audit", Completed: true},
		{ID: "demo-design-3", Text: "Button components update"},
	}
	hero := []models.Subtask{
		{ID: "demo-hero-1", Text: "Illustrator export", Completed: true},
		{ID: "demo-hero-2", Text: "Animation implementation", Completed: true},
	}

	return []models.Task{
		{
			ID:          "demo-design",
			Title:       "Design System Update",
			Description: "Update the core design system to include new color palettes and component variants for the rebrand.",
			Status:      models.StatusInProgress,
			Priority:    models.PriorityHigh,
			Assignee:    "Alex Morgan",
			DueDate:     models.DueIn(now, 5),
			Progress:    models.ComputeProgress(design),
			Subtasks:    design,
			Comments: []models.Comment{
				comment("demo-design-c1", "Sarah", models.RoleClient, "Looking forward to seeing the new greens!", 2*time.Hour),
				comment("demo-design-c2", "Alex Morgan", models.RoleTeam, "Almost there, just finalizing the button state variants.", time.Hour),
			},
			InternalNotes: "Customer prefers rounded corners over sharp ones.",
			ProjectName:   "Rebrand",
			CreatedAt:     ms,
			UpdatedAt:     ms,
		},
		{
			ID:          "demo-payments",
			Title:       "API Integration: Payments",
			Description: "Implement secure payment processing for the merchant dashboard.",
			Status:      models.StatusTodo,
			Priority:    models.PriorityHigh,
			Assignee:    "Jordan Lee",
			DueDate:     models.DueIn(now, 12),
			Subtasks: []models.Subtask{
				{ID: "demo-payments-1", Text: "Schema design"},
				{ID: "demo-payments-2", Text: "Webhook setup"},
			},
			InternalNotes: "Need to check PCI compliance docs.",
			ProjectName:   "Merchant Dashboard",
			CreatedAt:     ms + 1,
			UpdatedAt:     ms + 1,
		},
		{
			ID:          "demo-hero",
			Title:       "Homepage Hero Animation",
			Description: "Create a smooth SVG animation for the homepage landing section to increase engagement.",
			Status:      models.StatusPendingApproval,
			Priority:    models.PriorityMedium,
			Assignee:    "Casey Wright",
			DueDate:     models.DueIn(now, -1),
			Progress:    models.ComputeProgress(hero),
			Subtasks:    hero,
			Comments: []models.Comment{
				comment("demo-hero-c1", "Casey Wright", models.RoleTeam, "Ready for review.", day),
			},
			ProjectName: "Rebrand",
			CreatedAt:   ms + 2,
			UpdatedAt:   ms + 2,
		},
		{
			ID:          "demo-content",
			Title:       "Content Strategy Audit",
			Description: "Comprehensive review of current blog content and keyword performance.",
			Status:      models.StatusTodo,
			Priority:    models.PriorityLow,
			Assignee:    "Taylor Reed",
			DueDate:     models.DueIn(now, 26),
			ProjectName: "Marketing",
			CreatedAt:   ms + 3,
			UpdatedAt:   ms + 3,
		},
	}
}

package models

import (
	"math"
	"time"
)

// DateLayout is the calendar format used for due dates
const DateLayout = "2006-01-02"

// ComputeProgress returns the checklist completion percentage. An empty
// checklist is 0%.
func ComputeProgress(subtasks []Subtask) int {
	if len(subtasks) == 0 {
		return 0
	}
	done := 0
	for _, s := range subtasks {
		if s.Completed {
			done++
		}
	}
	return percent(done, len(subtasks))
}

// Stats summarizes a board snapshot
type Stats struct {
	Total           int `json:"total"`
	Completed       int `json:"completed"`
	ProgressPercent int `json:"progressPercent"`
	Overdue         int `json:"overdueCount"`
}

// ComputeStats derives board statistics from tasks as of now
func ComputeStats(tasks []Task, now time.Time) Stats {
	var st Stats
	st.Total = len(tasks)
	for i := range tasks {
		if tasks[i].Status.Terminal() {
			st.Completed++
			continue
		}
		if IsOverdue(&tasks[i], now) {
			st.Overdue++
		}
	}
	st.ProgressPercent = percent(st.Completed, st.Total)
	return st
}

// IsOverdue reports whether a non-terminal task's due date lies before now.
// Due dates are taken at midnight in now's location; unparseable dates are
// never overdue.
func IsOverdue(t *Task, now time.Time) bool {
	if t.Status.Terminal() || t.DueDate == "" {
		return false
	}
	due, err := time.ParseInLocation(DateLayout, t.DueDate, now.Location())
	if err != nil {
		return false
	}
	return due.Before(now)
}

// DueIn returns the calendar date the given number of days after now, in
// now's location
func DueIn(now time.Time, days int) string {
	return now.AddDate(0, 0, days).Format(DateLayout)
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	p := int(math.Round(100 * float64(n) / float64(total)))
	return max(0, min(100, p))
}

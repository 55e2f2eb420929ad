package schedule

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only touch do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ConflictChecker finds classes of an instructor that overlap a time window.
type ConflictChecker struct {
	repo Repository
}

func NewConflictChecker(repo Repository) *ConflictChecker {
	return &ConflictChecker{repo: repo}
}

// Conflicts returns the non-cancelled classes of instructorID overlapping [start, end), except excludeID.
func (cc *ConflictChecker) Conflicts(ctx context.Context, instructorID string, start, end time.Time, excludeID string) ([]Class, error) {
	classes, err := cc.repo.QueryClasses(ctx, &ClassFilter{
		InstructorID: instructorID,
		Statuses:     []ClassStatus{StatusScheduled, StatusCompleted},
		From:         start,
		To:           end,
		ExcludeID:    excludeID,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying instructor classes")
	}

	var conflicts []Class
	for _, cls := range classes {
		if cls.ID == excludeID || cls.Status == StatusCancelled {
			continue
		}
		if Overlaps(start, end, cls.StartTime, cls.EndTime) {
			conflicts = append(conflicts, cls)
		}
	}
	return conflicts, nil
}

func (cc *ConflictChecker) HasConflict(ctx context.Context, instructorID string, start, end time.Time, excludeID string) (bool, error) {
	conflicts, err := cc.Conflicts(ctx, instructorID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

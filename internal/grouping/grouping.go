// Package grouping computes per-message presentation hints for a
// conversation log. Everything here is pure and may be recomputed on every
// render.
package grouping

import (
	"github.com/capitalize-ai/chatsync/internal/model"
)

// MaxGap is the largest pause, in milliseconds, between two messages of the
// same sender that still keeps them in one group.
const MaxGap int64 = 5 * 60 * 1000

// Plan computes the hints for log[index], looking only at its neighbours.
// An out-of-range index yields zero hints.
func Plan(log []model.Message, currentUserID string, index int) model.Hints {
	if index < 0 || index >= len(log) {
		return model.Hints{}
	}
	cur := &log[index]

	var prev, next *model.Message
	if index > 0 {
		prev = &log[index-1]
	}
	if index+1 < len(log) {
		next = &log[index+1]
	}

	longPauseAfter := next != nil && next.CreatedAt-cur.CreatedAt > MaxGap

	first := prev == nil || prev.SenderID != cur.SenderID || cur.CreatedAt-prev.CreatedAt > MaxGap
	last := next == nil || next.SenderID != cur.SenderID || longPauseAfter
	own := cur.SenderID == currentUserID

	return model.Hints{
		IsFirstInGroup: first,
		IsLastInGroup:  last,
		ShowAvatar:     last && !own,
		ShowName:       first && !own,
		ShowTimestamp:  last || longPauseAfter,
		Shape:          shape(first, last),
	}
}

// PlanAll computes hints for every message of the log.
func PlanAll(log []model.Message, currentUserID string) []model.Hints {
	out := make([]model.Hints, len(log))
	for i := range log {
		out[i] = Plan(log, currentUserID, i)
	}
	return out
}

func shape(first, last bool) model.Shape {
	switch {
	case first && last:
		return model.ShapeSingle
	case first:
		return model.ShapeFirst
	case last:
		return model.ShapeLast
	default:
		return model.ShapeMiddle
	}
}

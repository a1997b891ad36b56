package model

// Shape is the bubble corner style of a message within its run.
type Shape string

const (
	ShapeSingle Shape = "single"
	ShapeFirst  Shape = "first"
	ShapeMiddle Shape = "middle"
	ShapeLast   Shape = "last"
)

// Hints are the presentation flags computed for one message of a log.
type Hints struct {
	IsFirstInGroup bool  `json:"is_first_in_group"`
	IsLastInGroup  bool  `json:"is_last_in_group"`
	ShowAvatar     bool  `json:"show_avatar"`
	ShowName       bool  `json:"show_name"`
	ShowTimestamp  bool  `json:"show_timestamp"`
	Shape          Shape `json:"shape"`
}

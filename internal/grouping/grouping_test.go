package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/chatsync/internal/model"
)

func at(sender string, ms int64) model.Message {
	return model.Message{SenderID: sender, CreatedAt: ms}
}

func TestPlanLongPauseSplitsGroup(t *testing.T) {
	log := []model.Message{
		at("A", 0),
		at("A", 120_000),
		at("A", 120_000+400_000),
	}

	h := PlanAll(log, "me")

	assert.True(t, h[0].IsFirstInGroup)
	assert.False(t, h[0].IsLastInGroup)
	assert.False(t, h[0].ShowTimestamp)
	assert.Equal(t, model.ShapeFirst, h[0].Shape)

	assert.False(t, h[1].IsFirstInGroup)
	assert.True(t, h[1].IsLastInGroup)
	assert.True(t, h[1].ShowTimestamp)
	assert.True(t, h[1].ShowAvatar)
	assert.Equal(t, model.ShapeLast, h[1].Shape)

	assert.True(t, h[2].IsFirstInGroup)
	assert.True(t, h[2].IsLastInGroup)
	assert.True(t, h[2].ShowName)
	assert.Equal(t, model.ShapeSingle, h[2].Shape)
}

func TestPlanSenderChange(t *testing.T) {
	log := []model.Message{
		at("A", 0),
		at("A", 1000),
		at("A", 2000),
		at("B", 3000),
	}

	h := PlanAll(log, "B")

	assert.Equal(t, []model.Shape{model.ShapeFirst, model.ShapeMiddle, model.ShapeLast, model.ShapeSingle},
		[]model.Shape{h[0].Shape, h[1].Shape, h[2].Shape, h[3].Shape})
	assert.True(t, h[0].ShowName)
	assert.False(t, h[1].ShowName)
	assert.False(t, h[1].ShowAvatar)
	assert.False(t, h[1].ShowTimestamp)
	assert.True(t, h[2].ShowAvatar)
	assert.True(t, h[3].ShowTimestamp)
}

func TestPlanExactGapStaysGrouped(t *testing.T) {
	log := []model.Message{at("A", 0), at("A", MaxGap)}

	assert.False(t, Plan(log, "me", 0).IsLastInGroup)
	assert.False(t, Plan(log, "me", 1).IsFirstInGroup)
}

func TestPlanOwnMessagesNeverShowAvatarOrName(t *testing.T) {
	log := []model.Message{
		at("me", 0),
		at("me", 10_000_000),
		at("other", 10_000_001),
		at("me", 10_000_002),
	}

	for i := range log {
		h := Plan(log, "me", i)
		if log[i].SenderID == "me" {
			assert.False(t, h.ShowAvatar, "index %d", i)
			assert.False(t, h.ShowName, "index %d", i)
		}
	}
	assert.True(t, Plan(log, "me", 2).ShowAvatar)
}

func TestPlanOutOfRange(t *testing.T) {
	assert.Equal(t, model.Hints{}, Plan(nil, "me", 0))
	assert.Equal(t, model.Hints{}, Plan([]model.Message{at("A", 0)}, "me", -1))
	assert.Equal(t, model.Hints{}, Plan([]model.Message{at("A", 0)}, "me", 1))
}

package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/chatsync/internal/model"
)

func conv(id string, lastAt, activity int64) *model.Conversation {
	c := &model.Conversation{ParticipantID: id, LastActivity: activity}
	if lastAt > 0 {
		c.Messages = []model.Message{{ID: 1, CreatedAt: lastAt}}
	}
	return c
}

func ids(convs []*model.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ParticipantID
	}
	return out
}

func TestRankByLastMessage(t *testing.T) {
	convs := []*model.Conversation{
		conv("a", 5000, 0),
		conv("b", 9000, 0),
		conv("c", 0, 0),
	}

	Rank(convs)

	assert.Equal(t, []string{"b", "a", "c"}, ids(convs))
	assert.Equal(t, []int64{9000, 5000, 0}, []int64{Score(convs[0]), Score(convs[1]), Score(convs[2])})
}

func TestRankZeroScoresLast(t *testing.T) {
	convs := []*model.Conversation{
		conv("empty1", 0, 0),
		conv("old", 1, 0),
		conv("empty2", 0, -5),
		conv("new", 2, 0),
	}

	Rank(convs)

	assert.Equal(t, []string{"new", "old", "empty1", "empty2"}, ids(convs))
}

func TestRankUsesFallbackActivity(t *testing.T) {
	convs := []*model.Conversation{
		conv("msgs", 4000, 99999),
		conv("marker", 0, 7000),
	}

	Rank(convs)

	assert.Equal(t, []string{"marker", "msgs"}, ids(convs))
	assert.Equal(t, int64(4000), Score(convs[1]))
}

func TestRankTiesKeepInputOrder(t *testing.T) {
	convs := []*model.Conversation{
		conv("first", 3000, 0),
		conv("second", 3000, 0),
		conv("third", 0, 3000),
	}

	Rank(convs)

	assert.Equal(t, []string{"first", "second", "third"}, ids(convs))
}

package suggestions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-speakers/internal/models"
)

func TestDetectDuplicates(t *testing.T) {
	list := []models.Suggestion{
		{ID: 1, Speaker: "John Smith", Approved: true, Reviewed: true},
		{ID: 2, Speaker: "Ada Lovelace", Approved: true, Reviewed: true},
		{ID: 3, Speaker: "Smith John's Band"},
		{ID: 4, Speaker: "ADA"},
		{ID: 5, Speaker: "Alan Turing", Reviewed: true},
		{ID: 6, Speaker: "john smith", Reviewed: true, Duplicate: true},
		{ID: 7, Speaker: "Lovelace Smith", Reviewed: true},
	}

	candidates := DetectDuplicates(list)
	require.Len(t, candidates, 3)

	assert.EqualValues(t, 3, candidates[0].Suggestion.ID)
	assert.Equal(t, []string{"smith"}, candidates[0].SharedTokens)

	assert.EqualValues(t, 4, candidates[1].Suggestion.ID)
	assert.Equal(t, []string{"ada"}, candidates[1].SharedTokens)

	assert.EqualValues(t, 7, candidates[2].Suggestion.ID)
	assert.Len(t, candidates[2].Matches, 2)
	assert.Equal(t, []string{"lovelace", "smith"}, candidates[2].SharedTokens)
}

func TestDetectDuplicates_NoApproved(t *testing.T) {
	list := []models.Suggestion{{ID: 1, Speaker: "Grace Hopper"}, {ID: 2, Speaker: "Hopper"}}
	assert.Empty(t, DetectDuplicates(list))
}

func TestDifference(t *testing.T) {
	assert.Equal(t, []string{"a"}, difference([]string{"a", "b"}, []string{"b"}))
	assert.Equal(t, []string{}, difference(nil, []string{"b"}))
	assert.Equal(t, []string{"a", "b"}, difference([]string{"a", "b", "a"}, nil))
}

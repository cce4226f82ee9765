package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWeightsSumTo100(t *testing.T) {
	t.Parallel()

	w := DefaultWeights()
	assert.Equal(t, 100, w.Sum())
	require.NoError(t, w.Validate())
}

func TestValidateRejectsBadSum(t *testing.T) {
	t.Parallel()

	w := DefaultWeights()
	w.PromptSOV += 5
	assert.Error(t, w.Validate())
}

func TestNewAggregatorRejectsInvalidWeights(t *testing.T) {
	t.Parallel()

	w := DefaultWeights()
	w.AITraffic = 0
	_, err := NewAggregator(&fakePopulation{}, nil, w)
	assert.Error(t, err)
}

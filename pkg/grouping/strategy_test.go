package grouping

import (
	"testing"

	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	t.Run("valid venue strategy", func(t *testing.T) {
		s, err := ParseStrategy(models.RecordKindVenue, "title_address")
		require.NoError(t, err)
		assert.Equal(t, StrategyTitleAddress, s)
	})

	t.Run("case insensitive with whitespace", func(t *testing.T) {
		s, err := ParseStrategy(models.RecordKindEvent, " Title_Time ")
		require.NoError(t, err)
		assert.Equal(t, StrategyTitleTime, s)
	})

	t.Run("blank name defaults to title", func(t *testing.T) {
		for _, name := range []string{"", "   "} {
			s, err := ParseStrategy(models.RecordKindVenue, name)
			require.NoError(t, err)
			assert.Equal(t, StrategyTitle, s)
		}

		s, err := ParseStrategy(models.RecordKindEvent, "")
		require.NoError(t, err)
		assert.Equal(t, StrategyTitle, s)
	})

	t.Run("strategy not valid for kind", func(t *testing.T) {
		_, err := ParseStrategy(models.RecordKindEvent, "telephone")
		assert.Error(t, err)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := ParseStrategy(models.RecordKindVenue, "bogus")
		assert.Error(t, err)
	})
}

func TestKeyFor(t *testing.T) {
	t.Run("title strategy normalizes", func(t *testing.T) {
		c := models.GroupCandidate{Title: "The Crystal   Ballroom!"}
		assert.Equal(t, "crystal ballroom", KeyFor(StrategyTitle, c))
	})

	t.Run("composite key joins parts", func(t *testing.T) {
		c := models.GroupCandidate{
			Title:  "Crystal Ballroom",
			Fields: map[string]string{"address": "1332 West Burnside Street"},
		}
		assert.Equal(t, "crystal ballroom|1332 w burnside st", KeyFor(StrategyTitleAddress, c))
	})

	t.Run("composite key blank when any part blank", func(t *testing.T) {
		c := models.GroupCandidate{
			Title:  "Crystal Ballroom",
			Fields: map[string]string{"address": "  "},
		}
		assert.Equal(t, "", KeyFor(StrategyTitleAddress, c))
	})

	t.Run("missing field produces blank key", func(t *testing.T) {
		c := models.GroupCandidate{Title: "Crystal Ballroom", Fields: map[string]string{}}
		assert.Equal(t, "", KeyFor(StrategyWebURL, c))
	})

	t.Run("url strategy strips scheme and www", func(t *testing.T) {
		a := models.GroupCandidate{Fields: map[string]string{"url": "https://www.example.com/"}}
		b := models.GroupCandidate{Fields: map[string]string{"url": "http://example.com"}}
		assert.Equal(t, KeyFor(StrategyWebURL, a), KeyFor(StrategyWebURL, b))
	})

	t.Run("telephone strategy keeps digits only", func(t *testing.T) {
		a := models.GroupCandidate{Fields: map[string]string{"telephone": "(503) 555-1234"}}
		b := models.GroupCandidate{Fields: map[string]string{"telephone": "503.555.1234"}}
		assert.Equal(t, "5035551234", KeyFor(StrategyTelephone, a))
		assert.Equal(t, KeyFor(StrategyTelephone, a), KeyFor(StrategyTelephone, b))
	})
}

func TestStrategiesFor(t *testing.T) {
	assert.Contains(t, StrategiesFor(models.RecordKindVenue), StrategyTelephone)
	assert.NotContains(t, StrategiesFor(models.RecordKindEvent), StrategyTelephone)
	assert.Contains(t, StrategiesFor(models.RecordKindEvent), StrategyTitleTime)
}

package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

func TestEventScope(t *testing.T) {
	r := domain.DateRange{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
	}

	scope, err := eventScope("p1", r, nil)
	require.NoError(t, err)
	assert.Equal(t, "(project_id = ? AND created_at >= ? AND created_at < ?)", scope.SQL)
	assert.Equal(t, []any{"p1", r.Start, r.End}, scope.Args)

	scope, err = eventScope("p1", r, []domain.Filter{{Field: "country", Operator: domain.OpEq, Value: "SE"}})
	require.NoError(t, err)
	assert.Equal(t, "(project_id = ? AND created_at >= ? AND created_at < ?) AND (country = ?)", scope.SQL)
	assert.Equal(t, []any{"p1", r.Start, r.End, "SE"}, scope.Args)

	_, err = eventScope("p1", r, []domain.Filter{{Field: "country", Operator: "bogus"}})
	assert.ErrorIs(t, err, domain.ErrInvalidOperator)
}

func TestSeries_MergesAndSorts(t *testing.T) {
	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	s := newSeries()
	s.at(day2).ScreenViews = 4
	s.at(day1).UniqueDevices = 2
	s.at(day2).BounceRate = 50

	points := s.points()
	require.Len(t, points, 2)
	assert.Equal(t, day1, points[0].Bucket)
	assert.Equal(t, uint64(2), points[0].UniqueDevices)
	assert.Equal(t, uint64(4), points[1].ScreenViews)
	assert.Equal(t, float64(50), points[1].BounceRate)
}

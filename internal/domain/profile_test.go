package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldProfiles_Empty(t *testing.T) {
	assert.Nil(t, FoldProfiles(nil))
}

func TestFoldProfiles_LaterSnapshotsWin(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	snapshots := []*Profile{
		{
			ID: "p1", ProjectID: "proj", FirstName: "Ada", Email: "ada@example.com",
			Properties: `{"plan":"free","score":1}`, FirstSeenAt: t0, LastSeenAt: t0, CreatedAt: t0,
		},
		{
			ID: "p1", ProjectID: "proj", Properties: `{"score":6}`,
			LastSeenAt: t0.Add(time.Hour), CreatedAt: t0.Add(time.Hour),
		},
		{
			ID: "p1", ProjectID: "proj", LastName: "Lovelace", Properties: `{"plan":"pro"}`,
			LastSeenAt: t0.Add(2 * time.Hour), CreatedAt: t0.Add(2 * time.Hour),
		},
	}

	p := FoldProfiles(snapshots)
	require.NotNil(t, p)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Lovelace", p.LastName)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, t0, p.FirstSeenAt)
	assert.Equal(t, t0.Add(2*time.Hour), p.LastSeenAt)

	props := p.PropertyMap()
	assert.Equal(t, "pro", props["plan"])
	assert.Equal(t, float64(6), props["score"])
}

func TestProfile_PropertyMap_Malformed(t *testing.T) {
	p := &Profile{Properties: "{not json"}
	assert.Empty(t, p.PropertyMap())
}

func TestEncodeProperties(t *testing.T) {
	assert.Equal(t, "{}", EncodeProperties(nil))
	assert.JSONEq(t, `{"a":1}`, EncodeProperties(map[string]any{"a": 1}))
}

func TestSessionAggregate_Summarize(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	agg := &SessionAggregate{Session: Session{
		ID: "s1", CreatedAt: start, EndedAt: start.Add(90 * time.Second), ScreenViews: 1,
	}}
	s := agg.Summarize()
	assert.Equal(t, uint64(90000), s.Duration)
	assert.True(t, s.IsBounce)

	agg.ScreenViews = 3
	assert.False(t, agg.Summarize().IsBounce)
}

package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

// memoryProfiles is an append-only snapshot store with the same read
// semantics as the ClickHouse repository.
type memoryProfiles struct {
	mu        sync.Mutex
	snapshots []*domain.Profile
	// beforeRead, when set, runs after a number read and before it returns.
	beforeRead func()
}

func (m *memoryProfiles) GetProfile(_ context.Context, projectID, profileID string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.FoldProfiles(m.matching(projectID, profileID)), nil
}

func (m *memoryProfiles) GetProfileNumber(_ context.Context, projectID, profileID, property string) (float64, error) {
	m.mu.Lock()
	snapshots := m.matching(projectID, profileID)
	value := 0.0
	for i := len(snapshots) - 1; i >= 0; i-- {
		if v, ok := snapshots[i].PropertyMap()[property].(float64); ok {
			value = v
			break
		}
	}
	m.mu.Unlock()

	if m.beforeRead != nil {
		m.beforeRead()
	}
	return value, nil
}

func (m *memoryProfiles) InsertProfile(_ context.Context, p *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, p)
	return nil
}

func (m *memoryProfiles) matching(projectID, profileID string) []*domain.Profile {
	var out []*domain.Profile
	for _, s := range m.snapshots {
		if s.ProjectID == projectID && s.ID == profileID {
			out = append(out, s)
		}
	}
	return out
}

type memoryAliases struct {
	mu      sync.Mutex
	aliases map[string]string
}

func (a *memoryAliases) SetAlias(_ context.Context, projectID, deviceID, profileID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.aliases == nil {
		a.aliases = map[string]string{}
	}
	a.aliases[projectID+":"+deviceID] = profileID
	return nil
}

func (a *memoryAliases) Alias(_ context.Context, projectID, deviceID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aliases[projectID+":"+deviceID], nil
}

func profileJob(t *testing.T, pj domain.ProfileJob) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(domain.TopicProfiles, pj, "", testTimestamp)
	require.NoError(t, err)
	return job
}

func newTestProfileWorker(store *memoryProfiles, aliases *memoryAliases) *ProfileWorker {
	w := NewProfileWorker(store, aliases, zap.NewNop())
	tick := testTimestamp
	w.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return w
}

func TestProfileWorker_SequentialIncrements(t *testing.T) {
	store := &memoryProfiles{}
	worker := newTestProfileWorker(store, &memoryAliases{})
	ctx := context.Background()

	require.NoError(t, worker.Handle(ctx, profileJob(t, domain.ProfileJob{
		Kind: domain.MutationIncrement, ProjectID: "proj", ProfileID: "u1", Property: "credits", Delta: 5,
	})))
	require.NoError(t, worker.Handle(ctx, profileJob(t, domain.ProfileJob{
		Kind: domain.MutationIncrement, ProjectID: "proj", ProfileID: "u1", Property: "credits", Delta: -2,
	})))

	value, err := store.GetProfileNumber(ctx, "proj", "u1", "credits")
	require.NoError(t, err)
	assert.Equal(t, 3.0, value)
	assert.Len(t, store.snapshots, 2)
}

// Two increments that both read before either writes lose one update.
func TestProfileWorker_ConcurrentIncrementsCanLoseUpdate(t *testing.T) {
	var reads sync.WaitGroup
	reads.Add(2)
	store := &memoryProfiles{beforeRead: func() {
		reads.Done()
		reads.Wait()
	}}
	worker := newTestProfileWorker(store, &memoryAliases{})
	// The shared tick counter is not safe for concurrent use.
	var nowMu sync.Mutex
	now := worker.now
	worker.now = func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return now()
	}

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, worker.Handle(context.Background(), profileJob(t, domain.ProfileJob{
				Kind: domain.MutationIncrement, ProjectID: "proj", ProfileID: "u1", Property: "credits", Delta: 1,
			})))
		}()
	}
	wg.Wait()

	store.beforeRead = nil
	value, err := store.GetProfileNumber(context.Background(), "proj", "u1", "credits")
	require.NoError(t, err)
	assert.Equal(t, 1.0, value)
}

func TestProfileWorker_IdentifyMergesAndAliases(t *testing.T) {
	store := &memoryProfiles{}
	aliases := &memoryAliases{}
	worker := newTestProfileWorker(store, aliases)
	ctx := context.Background()

	require.NoError(t, worker.Handle(ctx, profileJob(t, domain.ProfileJob{
		Kind: domain.MutationIdentify, ProjectID: "proj", ProfileID: "u1",
		FirstName: "Ada", Email: "ada@example.com",
		Properties: map[string]any{"plan": "free", "seats": 1},
	})))
	first, err := store.GetProfile(ctx, "proj", "u1")
	require.NoError(t, err)
	firstSeen := first.FirstSeenAt

	require.NoError(t, worker.Handle(ctx, profileJob(t, domain.ProfileJob{
		Kind: domain.MutationIdentify, ProjectID: "proj", ProfileID: "u1", DeviceID: "dev_9",
		LastName: "Lovelace", Properties: map[string]any{"plan": "pro"},
	})))

	p, err := store.GetProfile(ctx, "proj", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Lovelace", p.LastName)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, firstSeen, p.FirstSeenAt)
	assert.Equal(t, map[string]any{"plan": "pro", "seats": 1.0}, p.PropertyMap())

	profileID, err := aliases.Alias(ctx, "proj", "dev_9")
	require.NoError(t, err)
	assert.Equal(t, "u1", profileID)
}

func TestProfileWorker_RejectsMalformedJobs(t *testing.T) {
	worker := newTestProfileWorker(&memoryProfiles{}, &memoryAliases{})
	ctx := context.Background()

	cases := map[string]domain.ProfileJob{
		"missing profile":  {Kind: domain.MutationIdentify, ProjectID: "proj"},
		"missing property": {Kind: domain.MutationIncrement, ProjectID: "proj", ProfileID: "u1", Delta: 1},
		"unknown kind":     {Kind: "merge", ProjectID: "proj", ProfileID: "u1"},
	}
	for name, pj := range cases {
		t.Run(name, func(t *testing.T) {
			err := worker.Handle(ctx, profileJob(t, pj))
			assert.ErrorIs(t, err, queue.ErrMalformedJob)
		})
	}
}

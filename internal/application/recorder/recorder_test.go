package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	snaps []domain.MarketSnapshot
	err   error
}

func (f *fakeProvider) FetchSnapshots(context.Context) ([]domain.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snaps, f.err
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []domain.MarketSnapshot
	saveErr error
	cutoff  time.Time
}

func (s *fakeStore) SaveSnapshots(_ context.Context, snaps []domain.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, snaps...)
	return nil
}

func (s *fakeStore) LoadSnapshots(context.Context, time.Time, time.Time) ([]domain.MarketSnapshot, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) PruneSnapshots(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return 3, nil
}

type fakeStats struct{ saved, failed int }

func (f *fakeStats) RecorderSaved(n int) { f.saved += n }
func (f *fakeStats) RecorderFailed()     { f.failed++ }

func snaps(n int) []domain.MarketSnapshot {
	out := make([]domain.MarketSnapshot, n)
	for i := range out {
		out[i] = domain.MarketSnapshot{MarketID: string(rune('a' + i)), OutcomePrices: []float64{0.5, 0.5}, Timestamp: t0}
	}
	return out
}

func TestRunOnce_SavesAndPrunes(t *testing.T) {
	p := &fakeProvider{snaps: snaps(3)}
	st := &fakeStore{}
	stats := &fakeStats{}
	r := New(Config{Retention: 24 * time.Hour}, p, st,
		WithPruner(st), WithStats(stats), WithClock(func() time.Time { return t0 }))

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, st.saved, 3)
	assert.Equal(t, 3, stats.saved)
	assert.Equal(t, t0.Add(-24*time.Hour), st.cutoff)
}

func TestRunOnce_NoRetentionNoPrune(t *testing.T) {
	st := &fakeStore{}
	r := New(Config{}, &fakeProvider{snaps: snaps(1)}, st, WithPruner(st))
	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, st.cutoff.IsZero())
}

func TestRunOnce_Errors(t *testing.T) {
	stats := &fakeStats{}
	r := New(Config{}, &fakeProvider{err: errors.New("api down")}, &fakeStore{}, WithStats(stats))
	_, err := r.RunOnce(context.Background())
	assert.ErrorContains(t, err, "fetch")

	r = New(Config{}, &fakeProvider{snaps: snaps(2)}, &fakeStore{saveErr: errors.New("disk full")}, WithStats(stats))
	_, err = r.RunOnce(context.Background())
	assert.ErrorContains(t, err, "save")
	assert.Equal(t, 2, stats.failed)
	assert.Zero(t, stats.saved)
}

func TestRun_Once(t *testing.T) {
	p := &fakeProvider{snaps: snaps(1)}
	r := New(Config{Once: true}, p, &fakeStore{})
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, p.Calls())

	p = &fakeProvider{err: errors.New("boom")}
	r = New(Config{Once: true}, p, &fakeStore{})
	assert.Error(t, r.Run(context.Background()), "single cycle error is returned")
}

func TestRun_LoopsUntilCancelled(t *testing.T) {
	p := &fakeProvider{err: errors.New("flaky")}
	r := New(Config{Interval: 10 * time.Millisecond}, p, &fakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"loop keeps going after failed cycles")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

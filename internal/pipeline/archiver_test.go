package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bahbah94/Orbex/internal/domain"
)

type fakeBlobArchiver struct {
	archived int64
	err      error
	cutoff   time.Time
}

func (f *fakeBlobArchiver) ArchiveTrades(_ context.Context, before time.Time) (int64, error) {
	f.cutoff = before
	return f.archived, f.err
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

type fakeLocker struct {
	err      error
	acquired []string
	released int
}

func (f *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, key)
	return func() { f.released++ }, nil
}

func TestArchiverRun(t *testing.T) {
	blob := &fakeBlobArchiver{archived: 7}
	notifier := &fakeNotifier{}
	a := NewArchiver(blob, 30, nil, notifier, discardLogger())

	require.NoError(t, a.Run(context.Background()))

	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.WithinDuration(t, wantCutoff, blob.cutoff, time.Minute)
	assert.Equal(t, []string{"archive_complete"}, notifier.events)
}

func TestArchiverRunFailureNotifies(t *testing.T) {
	blob := &fakeBlobArchiver{err: errors.New("bucket gone")}
	notifier := &fakeNotifier{}
	a := NewArchiver(blob, 30, nil, notifier, discardLogger())

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"archive_failed"}, notifier.events)
}

func TestArchiverRunHoldsLock(t *testing.T) {
	blob := &fakeBlobArchiver{archived: 3}
	locker := &fakeLocker{}
	a := NewArchiver(blob, 30, locker, nil, discardLogger())

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, []string{"archive:trades"}, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestArchiverRunSkipsWhenLockHeld(t *testing.T) {
	blob := &fakeBlobArchiver{archived: 3}
	locker := &fakeLocker{err: domain.ErrLockHeld}
	a := NewArchiver(blob, 30, locker, nil, discardLogger())

	require.NoError(t, a.Run(context.Background()))
	assert.True(t, blob.cutoff.IsZero(), "archive pass ran despite held lock")
}

func TestParseCronField(t *testing.T) {
	tests := []struct {
		field   string
		val     int
		matches bool
		wantErr bool
	}{
		{field: "*", val: 59, matches: true},
		{field: "*/15", val: 30, matches: true},
		{field: "*/15", val: 31, matches: false},
		{field: "0", val: 0, matches: true},
		{field: "0", val: 1, matches: false},
		{field: "1,15", val: 15, matches: true},
		{field: "9-17", val: 12, matches: true},
		{field: "9-17", val: 18, matches: false},
		{field: "17-9", wantErr: true},
		{field: "x", wantErr: true},
		{field: "*/0", wantErr: true},
	}
	for _, tt := range tests {
		f, err := parseCronField(tt.field)
		if tt.wantErr {
			assert.Error(t, err, "field %q", tt.field)
			continue
		}
		require.NoError(t, err, "field %q", tt.field)
		assert.Equal(t, tt.matches, f.matches(tt.val), "field %q val %d", tt.field, tt.val)
	}
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2024, 5, 10, 14, 30, 45, 0, time.UTC)

	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 11, 3, 0, 0, 0, time.UTC), next)

	next, err = nextCronTime("*/15 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 10, 14, 45, 0, 0, time.UTC), next)

	_, err = nextCronTime("bad cron", after)
	assert.Error(t, err)
}

func TestRunCronStopsOnCancel(t *testing.T) {
	a := NewArchiver(&fakeBlobArchiver{}, 30, nil, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.RunCron(ctx, "0 3 * * *") }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunCron did not stop on context cancellation")
	}
}

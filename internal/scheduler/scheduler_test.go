package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTimesAlignsToBoundaryPlusOffset(t *testing.T) {
	s := &AlignedScheduler{Interval: 24 * time.Hour, Offset: 6*time.Hour + 10*time.Minute}
	now := time.Date(2025, 8, 25, 3, 30, 0, 0, time.UTC)

	boundary, wakeAt, untilBoundary, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2025, 8, 26, 0, 0, 0, 0, time.UTC), boundary)
	assert.Equal(t, time.Date(2025, 8, 26, 6, 10, 0, 0, time.UTC), wakeAt)
	assert.Equal(t, 20*time.Hour+30*time.Minute, untilBoundary)
	assert.Equal(t, 26*time.Hour+40*time.Minute, wait)
}

func TestNextTimesHourlyInterval(t *testing.T) {
	s := &AlignedScheduler{Interval: time.Hour}
	now := time.Date(2025, 8, 25, 14, 59, 30, 0, time.UTC)

	boundary, wakeAt, _, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2025, 8, 25, 15, 0, 0, 0, time.UTC), boundary)
	assert.Equal(t, boundary, wakeAt)
	assert.Equal(t, 30*time.Second, wait)
}

func TestNextFixedTimeAfter(t *testing.T) {
	anchor := time.Date(2025, 8, 25, 6, 0, 0, 0, time.UTC)
	interval := 12 * time.Hour

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before anchor", anchor.Add(-time.Hour), anchor},
		{"just after anchor", anchor.Add(time.Minute), anchor.Add(12 * time.Hour)},
		{"after one interval", anchor.Add(13 * time.Hour), anchor.Add(24 * time.Hour)},
		{"exactly on a tick", anchor.Add(24 * time.Hour), anchor.Add(36 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, nextFixedTimeAfter(anchor, interval, tc.now))
		})
	}
}

func TestStartRunImmediatelyThenCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewAlignedScheduler(ctx, time.Hour, 0)
	s.Name = "analysis"
	s.RunImmediately = true

	ran := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(func() {
			select {
			case ran <- struct{}{}:
			default:
			}
			cancel()
		})
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not executed")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit after cancel")
	}
}

func TestStartRejectsInvalidInterval(t *testing.T) {
	s := NewAlignedScheduler(context.Background(), 0, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(func() { t.Error("task must not run") })
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exit on invalid interval")
	}
}

func TestAlignedOnceRunImmediatelyThenCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewAlignedOnceScheduler(ctx, 24*time.Hour, 12*time.Hour, 0)
	s.Name = "reeval"
	s.RunImmediately = true

	ran := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(func() {
			select {
			case ran <- struct{}{}:
			default:
			}
			cancel()
		})
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not executed")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit after cancel")
	}
}

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4H", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{" 2d ", 48 * time.Hour, true},
		{"", 0, false},
		{"d", 0, false},
		{"0h", 0, false},
		{"-1h", 0, false},
		{"1x", 0, false},
		{"h1", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseIntervalDuration(tc.in)
		require.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseOffsetDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"", 0, true},
		{"6h10m", 6*time.Hour + 10*time.Minute, true},
		{"90s", 90 * time.Second, true},
		{"1d", 24 * time.Hour, true},
		{"-5m", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseOffsetDuration(tc.in)
		require.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

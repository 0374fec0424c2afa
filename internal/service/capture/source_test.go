package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arlens/internal/logger"
	"arlens/internal/model"
)

// fakeDevice produces 2x1 frames whose first byte counts reads.
type fakeDevice struct {
	openErr  error
	interval time.Duration

	mu       sync.Mutex
	reads    int
	failNext int
	opened   atomic.Bool
	closed   atomic.Int32
}

func (d *fakeDevice) Open() error {
	if d.openErr != nil {
		return d.openErr
	}
	d.opened.Store(true)
	return nil
}

func (d *fakeDevice) Read() (model.Frame, error) {
	time.Sleep(d.interval)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		return model.Frame{}, errors.New("device hiccup")
	}
	d.reads++
	return model.Frame{
		Data:     []byte{byte(d.reads), 0, 0, 0, 0, 0},
		Width:    2,
		Height:   1,
		Channels: 3,
	}, nil
}

func (d *fakeDevice) Close() error {
	d.closed.Add(1)
	return nil
}

func TestSource_ReadBeforeFirstFrame(t *testing.T) {
	src := NewSource(&fakeDevice{}, 30, logger.Discard())

	_, ok := src.Read()
	assert.False(t, ok)
	assert.Zero(t, src.LatestSeq())
}

func TestSource_OpenFailureIsFatal(t *testing.T) {
	dev := &fakeDevice{openErr: errors.New("no camera")}
	src := NewSource(dev, 30, logger.Discard())

	err := src.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceOpen))
	assert.False(t, src.Running())

	_, ok := src.Read()
	assert.False(t, ok)
}

func TestSource_PublishesIndependentCopies(t *testing.T) {
	dev := &fakeDevice{interval: time.Millisecond}
	src := NewSource(dev, 0, logger.Discard())
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	require.Eventually(t, func() bool {
		_, ok := src.Read()
		return ok
	}, time.Second, 5*time.Millisecond)

	a, _ := src.Read()
	a.Data[1] = 0xFF
	b, _ := src.Read()
	if b.Seq == a.Seq {
		assert.Zero(t, b.Data[1], "mutating a copy must not affect the published frame")
	}
	assert.Equal(t, 2, b.Width)
	assert.False(t, b.CapturedAt.IsZero())
}

func TestSource_RecoversFromReadFailures(t *testing.T) {
	dev := &fakeDevice{interval: time.Millisecond, failNext: 5}
	src := NewSource(dev, 0, logger.Discard())
	src.SetReadBackoff(time.Millisecond)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	require.Eventually(t, func() bool {
		_, ok := src.Read()
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(5), src.Stats().ReadFailures)
}

func TestSource_GovernorDiscardsFramesAboveTargetRate(t *testing.T) {
	dev := &fakeDevice{interval: time.Millisecond}
	src := NewSource(dev, 10, logger.Discard())
	require.NoError(t, src.Start(context.Background()))

	time.Sleep(300 * time.Millisecond)
	src.Stop()

	stats := src.Stats()
	// 300ms at 10 fps allows about 4 publishes (burst of 1 plus 3 refills).
	assert.LessOrEqual(t, stats.Captured, uint64(6))
	assert.Greater(t, stats.Governed, uint64(0))
}

func TestSource_StopIsIdempotentAndReleasesDevice(t *testing.T) {
	dev := &fakeDevice{interval: time.Millisecond}
	src := NewSource(dev, 0, logger.Discard())
	require.NoError(t, src.Start(context.Background()))

	src.Stop()
	src.Stop()

	assert.Equal(t, int32(1), dev.closed.Load())
	assert.False(t, src.Running())
}

func TestSource_StartTwice(t *testing.T) {
	src := NewSource(&fakeDevice{interval: time.Millisecond}, 0, logger.Discard())
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	assert.ErrorIs(t, src.Start(context.Background()), ErrAlreadyStarted)
}

func TestSource_SeqIsMonotonic(t *testing.T) {
	src := NewSource(&fakeDevice{interval: time.Millisecond}, 0, logger.Discard())
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	var last uint64
	for i := 0; i < 20; i++ {
		if f, ok := src.Read(); ok {
			assert.GreaterOrEqual(t, f.Seq, last)
			last = f.Seq
		}
		time.Sleep(2 * time.Millisecond)
	}
	assert.Greater(t, last, uint64(0))
}

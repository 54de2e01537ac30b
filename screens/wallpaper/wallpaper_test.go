package wallpaper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livewall/pkg/video"
)

type fakePlayback struct {
	path   string
	err    error
	closed bool
}

func (f *fakePlayback) Tick(targetW, targetH int32) (video.Presentation, bool) {
	return video.Presentation{Width: 2, Height: 2, Fresh: true}, true
}

func (f *fakePlayback) Stats() video.Stats { return video.Stats{Pushed: 1} }
func (f *fakePlayback) Err() error         { return f.err }

func (f *fakePlayback) Info() video.StreamInfo {
	return video.StreamInfo{Width: 2, Height: 2, FrameRate: 24, CodecName: "h264"}
}

func (f *fakePlayback) Close() error {
	f.closed = true
	return nil
}

type fakeOpener struct {
	mu     sync.Mutex
	broken map[string]bool
	opened []*fakePlayback
}

func newFakeOpener(broken ...string) *fakeOpener {
	o := &fakeOpener{broken: map[string]bool{}}
	for _, b := range broken {
		o.broken[b] = true
	}
	return o
}

func (o *fakeOpener) open(path string) (Playback, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.broken[path] {
		return nil, errors.New("corrupt file")
	}
	pb := &fakePlayback{path: path}
	o.opened = append(o.opened, pb)
	return pb, nil
}

func (o *fakeOpener) last() *fakePlayback {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[len(o.opened)-1]
}

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestNewRejectsEmptyPlaylist(t *testing.T) {
	_, err := New(Config{Open: newFakeOpener().open})
	assert.ErrorIs(t, err, ErrNoPlayableVideo)

	_, err = New(Config{Videos: []string{"a.mp4"}})
	assert.Error(t, err)
}

func TestLocalRotation(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	opener := newFakeOpener()
	w, err := New(Config{
		Videos:   []string{"a.mp4", "b.mp4", "c.mp4"},
		Interval: time.Minute,
		Open:     opener.open,
		now:      clock.now,
	})
	require.NoError(t, err)
	assert.Equal(t, "a.mp4", w.CurrentVideo())

	clock.advance(30 * time.Second)
	require.NoError(t, w.Update())
	assert.Equal(t, "a.mp4", w.CurrentVideo())

	clock.advance(30 * time.Second)
	require.NoError(t, w.Update())
	assert.Equal(t, "b.mp4", w.CurrentVideo())
	assert.True(t, opener.opened[0].closed)

	w.Next()
	w.Next()
	assert.Equal(t, "a.mp4", w.CurrentVideo())
	assert.Len(t, opener.opened, 4)

	p, ok := w.Frame(1920, 1080)
	assert.True(t, ok)
	assert.True(t, p.Fresh)
	assert.Equal(t, uint64(1), w.Stats().Pushed)
	assert.Equal(t, "h264", w.Info().CodecName)

	require.NoError(t, w.Close())
	assert.True(t, opener.last().closed)
	_, ok = w.Frame(1920, 1080)
	assert.False(t, ok)
}

func TestSingleVideoKeepsLooping(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	opener := newFakeOpener()
	w, err := New(Config{Videos: []string{"only.mp4"}, Interval: time.Second, Open: opener.open, now: clock.now})
	require.NoError(t, err)

	clock.advance(2 * time.Second)
	require.NoError(t, w.Update())
	w.Next()
	assert.Len(t, opener.opened, 1)
	assert.False(t, opener.opened[0].closed)
}

func TestZeroIntervalDisablesRotation(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	opener := newFakeOpener()
	w, err := New(Config{Videos: []string{"a.mp4", "b.mp4"}, Open: opener.open, now: clock.now})
	require.NoError(t, err)

	clock.advance(time.Hour)
	require.NoError(t, w.Update())
	assert.Equal(t, "a.mp4", w.CurrentVideo())
}

func TestBrokenVideosAreSkipped(t *testing.T) {
	opener := newFakeOpener("a.mp4")
	w, err := New(Config{Videos: []string{"a.mp4", "b.mp4"}, Open: opener.open})
	require.NoError(t, err)
	assert.Equal(t, "b.mp4", w.CurrentVideo())

	_, err = New(Config{Videos: []string{"a.mp4"}, Open: opener.open})
	assert.ErrorIs(t, err, ErrNoPlayableVideo)
}

func TestPlaybackFailure(t *testing.T) {
	opener := newFakeOpener()
	w, err := New(Config{Videos: []string{"a.mp4", "b.mp4"}, Open: opener.open})
	require.NoError(t, err)

	opener.last().err = video.ErrEmptyStream
	require.NoError(t, w.Update())
	assert.Equal(t, "b.mp4", w.CurrentVideo())

	single, err := New(Config{Videos: []string{"only.mp4"}, Open: opener.open})
	require.NoError(t, err)
	opener.last().err = video.ErrDecoderFault
	assert.ErrorIs(t, single.Update(), video.ErrDecoderFault)
}

func writeVideo(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	return path
}

func TestRemoteRotationPrefetches(t *testing.T) {
	dir := t.TempDir()
	first := writeVideo(t, dir, "v0.mp4")
	second := writeVideo(t, dir, "v1.mp4")

	var (
		mu     sync.Mutex
		starts []int
	)
	fetch := func(start, count int) ([]string, bool, error) {
		mu.Lock()
		starts = append(starts, start)
		mu.Unlock()
		var paths []string
		for i := 0; i < count; i++ {
			path := filepath.Join(dir, fmt.Sprintf("v%d.mp4", start+i))
			if err := os.WriteFile(path, []byte(path), 0o644); err != nil {
				return nil, false, err
			}
			paths = append(paths, path)
		}
		return paths, false, nil
	}

	opener := newFakeOpener()
	w, err := New(Config{Videos: []string{first, second}, Open: opener.open, Fetch: fetch, NextRemote: 2})
	require.NoError(t, err)

	w.Next()
	assert.Equal(t, second, w.CurrentVideo())
	assert.NoFileExists(t, first)
	assert.True(t, w.IsPrefetchPending())

	require.Eventually(t, func() bool {
		require.NoError(t, w.Update())
		return !w.IsPrefetchPending()
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{second, filepath.Join(dir, "v2.mp4")}, w.Videos())
	mu.Lock()
	assert.Equal(t, []int{2}, starts)
	mu.Unlock()
}

func TestNextQueuedWhilePrefetchPending(t *testing.T) {
	dir := t.TempDir()
	first := writeVideo(t, dir, "v0.mp4")
	second := writeVideo(t, dir, "v1.mp4")

	release := make(chan struct{})
	fetch := func(start, count int) ([]string, bool, error) {
		<-release
		path := filepath.Join(dir, "v2.mp4")
		return []string{path}, true, os.WriteFile(path, []byte("v2"), 0o644)
	}

	opener := newFakeOpener()
	w, err := New(Config{Videos: []string{first, second}, Open: opener.open, Fetch: fetch, NextRemote: 2})
	require.NoError(t, err)

	w.Next()
	require.True(t, w.IsPrefetchPending())
	w.Next()
	assert.Equal(t, second, w.CurrentVideo(), "queued while downloading")

	close(release)
	require.Eventually(t, func() bool {
		require.NoError(t, w.Update())
		return w.CurrentVideo() == filepath.Join(dir, "v2.mp4")
	}, 2*time.Second, 5*time.Millisecond)
	assert.NoFileExists(t, second)

	require.Eventually(t, func() bool {
		require.NoError(t, w.Update())
		return !w.IsPrefetchPending()
	}, 2*time.Second, 5*time.Millisecond)
}

func waitForPrefetch(t *testing.T, w *Wallpaper) {
	t.Helper()
	require.Eventually(t, func() bool {
		require.NoError(t, w.Update())
		return !w.IsPrefetchPending()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestExhaustedDownloadsWaitForRetry(t *testing.T) {
	dir := t.TempDir()
	only := writeVideo(t, dir, "v0.mp4")

	var calls atomic.Int64
	fetch := func(start, count int) ([]string, bool, error) {
		calls.Add(1)
		return nil, false, errors.New("bucket unreachable")
	}

	clock := &manualClock{t: time.Unix(0, 0)}
	opener := newFakeOpener()
	w, err := New(Config{
		Videos:   []string{only},
		Interval: time.Minute,
		Open:     opener.open,
		Fetch:    fetch,
		now:      clock.now,
	})
	require.NoError(t, err)

	w.Next()
	assert.Empty(t, w.Videos())
	assert.Equal(t, "", w.CurrentVideo())
	waitForPrefetch(t, w)
	assert.Equal(t, int64(1), calls.Load())

	// Skipping with nothing downloaded asks for another download.
	assert.NotPanics(t, w.Next)
	waitForPrefetch(t, w)
	assert.Equal(t, int64(2), calls.Load())

	// Interval rotation has nothing to rotate and retries wait for the delay.
	clock.advance(2 * time.Minute)
	assert.NotPanics(t, func() { require.NoError(t, w.Update()) })
	waitForPrefetch(t, w)
	assert.Equal(t, int64(3), calls.Load())

	clock.advance(time.Second)
	require.NoError(t, w.Update())
	assert.False(t, w.IsPrefetchPending())
	assert.Equal(t, int64(3), calls.Load())

	_, ok := w.Frame(1920, 1080)
	assert.False(t, ok)
}

func TestBrokenDownloadsWaitForReplacements(t *testing.T) {
	dir := t.TempDir()
	first := writeVideo(t, dir, "v0.mp4")
	broken := writeVideo(t, dir, "v1.mp4")

	release := make(chan struct{})
	fetch := func(start, count int) ([]string, bool, error) {
		<-release
		path := filepath.Join(dir, "v2.mp4")
		return []string{path}, false, os.WriteFile(path, []byte("v2"), 0o644)
	}

	opener := newFakeOpener(broken)
	w, err := New(Config{Videos: []string{first, broken}, Open: opener.open, Fetch: fetch, NextRemote: 2})
	require.NoError(t, err)

	w.Next()
	require.NoError(t, w.Update())
	assert.Empty(t, w.Videos())
	assert.NoFileExists(t, broken)

	close(release)
	require.Eventually(t, func() bool {
		require.NoError(t, w.Update())
		return w.CurrentVideo() == filepath.Join(dir, "v2.mp4")
	}, 2*time.Second, 5*time.Millisecond)
}

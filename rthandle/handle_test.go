package rthandle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shellrt/shellrt/scheduler"
	"github.com/shellrt/shellrt/system/virtsys"
)

func newTestHandle(t *testing.T) (*Handle, *virtsys.Kernel, func()) {
	t.Helper()
	k := virtsys.NewKernel()
	sys := k.NewProcessSystem()
	loop, err := scheduler.New(sys)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	h := New(loop, nil)
	cleanup := func() {
		cancel()
		<-done
	}
	return h, k, cleanup
}

func TestHandle_WriteAllThenReadAsync(t *testing.T) {
	h, _, cleanup := newTestHandle(t)
	defer cleanup()

	r, w, err := h.System().Pipe()
	require.NoError(t, err)

	ctx := context.Background()
	n, err := h.WriteAll(ctx, w, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = h.ReadAsync(ctx, r, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestHandle_WriteAllEmptyIsNoop(t *testing.T) {
	h, _, cleanup := newTestHandle(t)
	defer cleanup()

	r, w, err := h.System().Pipe()
	require.NoError(t, err)
	_ = r

	n, err := h.WriteAll(context.Background(), w, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

// TestHandle_ReadAsyncBlocksUntilWriter exercises the suspension path: the
// reader registers against an empty pipe and only completes once another
// goroutine writes, proving ReadAsync genuinely suspends rather than
// busy-polling.
func TestHandle_ReadAsyncBlocksUntilWriter(t *testing.T) {
	h, _, cleanup := newTestHandle(t)
	defer cleanup()

	r, w, err := h.System().Pipe()
	require.NoError(t, err)

	result := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := h.ReadAsync(context.Background(), r, buf)
		if err != nil {
			result <- "error: " + err.Error()
			return
		}
		result <- string(buf[:n])
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = h.WriteAll(context.Background(), w, []byte("late"))
	require.NoError(t, err)

	select {
	case got := <-result:
		require.Equal(t, "late", got)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadAsync never observed the write")
	}
}

func TestHandle_WaitUntilHonorsClock(t *testing.T) {
	h, k, cleanup := newTestHandle(t)
	defer cleanup()

	deadline := h.System().Now().Add(time.Second)
	done := make(chan error, 1)
	go func() { done <- h.WaitUntil(context.Background(), deadline) }()

	select {
	case <-done:
		t.Fatal("WaitUntil returned before the deadline")
	case <-time.After(50 * time.Millisecond):
	}

	k.AdvanceClock(2 * time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitUntil never woke after the clock advanced")
	}
}

func TestHandle_WaitUntilPastDeadlineReturnsImmediately(t *testing.T) {
	h, _, cleanup := newTestHandle(t)
	defer cleanup()

	err := h.WaitUntil(context.Background(), h.System().Now().Add(-time.Second))
	require.NoError(t, err)
}

func TestHandle_CloseRunsOnCloseAtZeroRefs(t *testing.T) {
	k := virtsys.NewKernel()
	sys := k.NewProcessSystem()
	loop, err := scheduler.New(sys)
	require.NoError(t, err)

	closed := 0
	h := New(loop, func() { closed++ })
	clone := h.Clone()

	h.Close()
	require.Equal(t, 0, closed)
	clone.Close()
	require.Equal(t, 1, closed)
}

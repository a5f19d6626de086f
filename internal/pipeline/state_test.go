package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRegistryLifecycle(t *testing.T) {
	r := newStateRegistry()

	r.set("a.pdf", StageFetching)
	st, ok := r.get("a.pdf")
	require.True(t, ok)
	assert.Equal(t, StageFetching, st.Stage)
	assert.Empty(t, st.Reason)

	r.fail("a.pdf", "TransientError")
	st, ok = r.get("a.pdf")
	require.True(t, ok)
	assert.Equal(t, StageFailed, st.Stage)
	assert.Equal(t, "TransientError", st.Reason)

	r.set("b.docx", StageCompleted)
	assert.Len(t, r.snapshot(), 2)

	_, ok = r.get("missing.pdf")
	assert.False(t, ok)
}

func TestKeyedLocksSerializeSameKey(t *testing.T) {
	locks := newKeyedLocks()
	ctx := context.Background()

	release1, err := locks.acquire(ctx, "doc")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release2, err := locks.acquire(ctx, "doc")
		assert.NoError(t, err)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the first holds the lock")
	case <-time.After(50 * time.Millisecond):
	}

	release1()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never proceeded after release")
	}
}

func TestKeyedLocksIndependentKeys(t *testing.T) {
	locks := newKeyedLocks()
	ctx := context.Background()

	release1, err := locks.acquire(ctx, "a.pdf")
	require.NoError(t, err)
	defer release1()

	done := make(chan struct{})
	go func() {
		release2, err := locks.acquire(ctx, "b.pdf")
		assert.NoError(t, err)
		release2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct keys must not contend")
	}
}

func TestKeyedLocksAcquireHonorsContext(t *testing.T) {
	locks := newKeyedLocks()

	release, err := locks.acquire(context.Background(), "doc")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "doc")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

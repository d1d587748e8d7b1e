package channel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/on-the-ground/saga_ive_go/shared/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_UnlimitedKeepsFIFO(t *testing.T) {
	ctx := context.Background()
	ch := channel.New[int](channel.Unlimited)

	for i := 1; i <= 5; i++ {
		require.NoError(t, ch.Send(ctx, i))
	}
	assert.Equal(t, 5, ch.Len())

	for i := 1; i <= 5; i++ {
		v, err := ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestChannel_ConflatedKeepsOnlyLatest(t *testing.T) {
	ctx := context.Background()
	ch := channel.New[string](channel.Conflated)

	require.NoError(t, ch.Send(ctx, "first"))
	require.NoError(t, ch.Send(ctx, "second"))
	assert.Equal(t, 1, ch.Len())

	v, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = ch.Receive(ctxTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "the overwritten value must be gone")
}

func TestChannel_RendezvousBlocksSenderUntilReceiver(t *testing.T) {
	ctx := context.Background()
	ch := channel.New[int](channel.Rendezvous)

	sent := make(chan error, 1)
	go func() {
		sent <- ch.Send(ctx, 42)
	}()

	select {
	case <-sent:
		t.Fatal("send must not complete without a receiver")
	case <-time.After(30 * time.Millisecond):
	}

	v, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	require.NoError(t, <-sent)
}

func TestChannel_RendezvousSendHonoursContext(t *testing.T) {
	ch := channel.New[int](channel.Rendezvous)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := ch.Send(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_CloseUnblocksWaiters(t *testing.T) {
	for _, policy := range []channel.Policy{channel.Rendezvous, channel.Conflated, channel.Unlimited} {
		t.Run(policy.String(), func(t *testing.T) {
			ch := channel.New[int](policy)
			errs := make(chan error, 1)
			go func() {
				_, err := ch.Receive(context.Background())
				errs <- err
			}()

			time.Sleep(10 * time.Millisecond)
			ch.Close()

			select {
			case err := <-errs:
				assert.True(t, errors.Is(err, channel.ErrClosed))
			case <-time.After(time.Second):
				t.Fatal("receiver was not released by Close")
			}
		})
	}
}

func TestChannel_RendezvousCloseReleasesBlockedSender(t *testing.T) {
	ch := channel.New[int](channel.Rendezvous)
	errs := make(chan error, 1)
	go func() {
		errs <- ch.Send(context.Background(), 1)
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Close()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, channel.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("sender was not released by Close")
	}
}

func TestChannel_SendAfterCloseFails(t *testing.T) {
	for _, policy := range []channel.Policy{channel.Rendezvous, channel.Conflated, channel.Unlimited} {
		ch := channel.New[int](policy)
		ch.Close()
		ch.Close() // one-shot

		assert.ErrorIs(t, ch.Send(context.Background(), 1), channel.ErrClosed, policy.String())
		select {
		case <-ch.Done():
		default:
			t.Fatalf("%s: Done not closed", policy)
		}
	}
}

func TestChannel_UnlimitedDrainsAfterClose(t *testing.T) {
	ctx := context.Background()
	ch := channel.New[int](channel.Unlimited)
	require.NoError(t, ch.Send(ctx, 1))
	require.NoError(t, ch.Send(ctx, 2))
	ch.Close()

	v, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = ch.Receive(ctx)
	assert.ErrorIs(t, err, channel.ErrClosed)
}

func TestChannel_TryReceiveNeverBlocks(t *testing.T) {
	ctx := context.Background()
	ch := channel.New[string](channel.Conflated)

	_, ok := ch.TryReceive()
	assert.False(t, ok)

	require.NoError(t, ch.Send(ctx, "a"))
	require.NoError(t, ch.Send(ctx, "b"))
	v, ok := ch.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = ch.TryReceive()
	assert.False(t, ok)

	rv := channel.New[int](channel.Rendezvous)
	_, ok = rv.TryReceive()
	assert.False(t, ok, "no sender is waiting")
}

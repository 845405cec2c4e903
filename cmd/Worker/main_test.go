package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func runAsync(ctx context.Context, start func(context.Context) error, logger *zap.Logger) <-chan error {
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, start, logger) }()
	return done
}

func TestRunServerReturnsWhenServerExits(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	done := runAsync(context.Background(), func(context.Context) error { return nil }, zap.New(core))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return after the server exited")
	}
	require.Zero(t, logs.FilterMessage("shutdown requested").Len())
}

func TestRunServerPropagatesStartError(t *testing.T) {
	boom := errors.New("listen: address in use")
	done := runAsync(context.Background(), func(context.Context) error { return boom }, zap.NewNop())

	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return the start error")
	}
}

func TestRunServerShutsDownOnCancel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, zap.New(core))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return after cancellation")
	}
	require.Equal(t, 1, logs.FilterMessage("shutdown requested").Len())
}

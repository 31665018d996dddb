package services

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWaitReconnectResumesOnSignal(t *testing.T) {
	t.Parallel()

	l := &AMQPListener{reconnect: make(chan bool), logger: zap.NewNop()}

	resumed := make(chan bool, 1)
	go func() {
		resumed <- l.waitReconnect(context.Background())
	}()

	l.reconnect <- true

	select {
	case ok := <-resumed:
		if !ok {
			t.Fatal("expected consumer to resume after reconnect signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waitReconnect never observed the reconnect signal")
	}
}

func TestWaitReconnectStopsOnCancel(t *testing.T) {
	t.Parallel()

	l := &AMQPListener{reconnect: make(chan bool), logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if l.waitReconnect(ctx) {
		t.Fatal("expected waitReconnect to stop on a cancelled context")
	}
}

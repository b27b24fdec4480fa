package main

import (
	"context"
	"errors"
	"os"
	osSignal "os/signal"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeApp struct {
	done        chan struct{}
	err         error
	shutdownErr error
	shutdowns   int
	closes      int
}

func newFakeApp() *fakeApp {
	return &fakeApp{done: make(chan struct{})}
}

func (f *fakeApp) Done() <-chan struct{} { return f.done }

func (f *fakeApp) Err() error { return f.err }

func (f *fakeApp) Shutdown(ctx context.Context) error {
	f.shutdowns++
	return f.shutdownErr
}

func (f *fakeApp) Close() error {
	f.closes++
	return nil
}

func TestShutdownSignals(t *testing.T) {
	t.Cleanup(func() {
		signalNotify = osSignal.Notify
	})

	signalNotify = func(ch chan<- os.Signal, sig ...os.Signal) {
		go func() {
			ch <- syscall.SIGTERM
		}()
	}

	app := newFakeApp()
	shutdown(app, time.Millisecond, zaptest.NewLogger(t))

	if app.shutdowns != 1 {
		t.Fatalf("expected one graceful shutdown, got %d", app.shutdowns)
	}
	if app.closes != 0 {
		t.Fatalf("expected no forced close, got %d", app.closes)
	}
}

func TestShutdownWhenAppStops(t *testing.T) {
	t.Cleanup(func() {
		signalNotify = osSignal.Notify
	})
	signalNotify = func(chan<- os.Signal, ...os.Signal) {}

	app := newFakeApp()
	app.err = errors.New("listener closed")
	close(app.done)

	shutdown(app, time.Millisecond, zaptest.NewLogger(t))

	if app.shutdowns != 1 {
		t.Fatalf("expected shutdown after app stopped, got %d", app.shutdowns)
	}
}

func TestShutdownFallsBackToClose(t *testing.T) {
	t.Cleanup(func() {
		signalNotify = osSignal.Notify
	})
	signalNotify = func(ch chan<- os.Signal, sig ...os.Signal) {
		go func() {
			ch <- syscall.SIGINT
		}()
	}

	app := newFakeApp()
	app.shutdownErr = context.DeadlineExceeded

	shutdown(app, time.Millisecond, zaptest.NewLogger(t))

	if app.closes != 1 {
		t.Fatalf("expected forced close after failed shutdown, got %d", app.closes)
	}
}

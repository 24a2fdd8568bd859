package provider

import (
	"context"
	"sync"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// processEventStream is the shared EventStream implementation backing every
// subprocess-based adapter (Claude, Codex, OpenCode): a goroutine runs
// decodeLines and closes the channel when the subprocess's stdout reaches
// EOF or the stream is closed.
type processEventStream struct {
	events chan StreamEvent
	cancel context.CancelFunc
	proc   Process

	mu     sync.Mutex
	err    error
	closed bool
	doneCh chan struct{}
}

func newProcessEventStream(parent context.Context, providerName string, proc Process) *processEventStream {
	ctx, cancel := context.WithCancel(parent)
	s := &processEventStream{
		events: make(chan StreamEvent, 256),
		cancel: cancel,
		proc:   proc,
		doneCh: make(chan struct{}),
	}

	go func() {
		defer close(s.events)
		defer close(s.doneCh)
		err := decodeLines(ctx, paseo.Provider(providerName), proc, s.events)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()

	return s
}

func (s *processEventStream) Events() <-chan StreamEvent { return s.events }

func (s *processEventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *processEventStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	err := s.proc.Signal(true)
	<-s.doneCh
	return err
}

package agent

import (
	"context"
	"fmt"
)

// mailboxCommand is the single unit of work the mailbox goroutine consumes.
// Every agent mutation (send, cancel, provider event, delete) is wrapped in
// one of these so the mailbox goroutine is the sole mutator of agent state,
// matching the command-queue serialization pattern used elsewhere in the
// daemon, generalized here to a strict single-consumer queue (maxConcurrent
// clamped to 1, spec §5's "one task per agent owns that agent's mutable
// state").
type mailboxCommand struct {
	run      func(ctx context.Context) (any, error)
	resultCh chan any
	errCh    chan error
}

// mailbox serializes all mutations against one agent's state through a
// single goroutine reading from a buffered (256-slot), one-at-a-time-drain
// channel; submit blocks while the buffer is full.
type mailbox struct {
	commands chan *mailboxCommand
	done     chan struct{}
}

func newMailbox() *mailbox {
	m := &mailbox{
		commands: make(chan *mailboxCommand, 256),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *mailbox) run() {
	defer close(m.done)
	for cmd := range m.commands {
		m.exec(cmd)
	}
}

func (m *mailbox) exec(cmd *mailboxCommand) {
	result, err := cmd.run(context.Background())
	if err != nil {
		cmd.errCh <- err
		return
	}
	cmd.resultCh <- result
}

// submit enqueues fn and blocks until it has run on the mailbox goroutine
// or ctx is cancelled first. Submitting after close returns an error
// immediately instead of blocking forever.
func submit[T any](ctx context.Context, m *mailbox, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)

	cmd := &mailboxCommand{
		run: func(ctx context.Context) (any, error) {
			return fn(ctx)
		},
		resultCh: resultCh,
		errCh:    errCh,
	}

	if err := func() (err error) {
		defer func() {
			if recover() != nil {
				err = fmt.Errorf("mailbox: closed")
			}
		}()
		select {
		case m.commands <- cmd:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}(); err != nil {
		return zero, err
	}

	select {
	case result := <-resultCh:
		typed, ok := result.(T)
		if !ok {
			return zero, fmt.Errorf("mailbox: unexpected result type %T", result)
		}
		return typed, nil
	case err := <-errCh:
		return zero, err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// close stops accepting new commands and waits for the goroutine to drain
// whatever was already enqueued.
func (m *mailbox) close() {
	close(m.commands)
	<-m.done
}

// ABOUTME: Wires the HTTP client, conversation store and renderer for one CLI run
// ABOUTME: Runs a turn to completion while printing store changes as they arrive

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/2389/taskstream/internal/client"
	"github.com/2389/taskstream/internal/conversation"
	"github.com/2389/taskstream/internal/dedupe"
	"github.com/2389/taskstream/internal/render"
)

// chatSession owns everything one CLI invocation needs to talk to the agent.
type chatSession struct {
	client   *client.Client
	store    *conversation.Store
	conv     *conversation.Conversation
	renderer *render.Renderer
	logger   *slog.Logger

	changes <-chan conversation.Change
	cancel  context.CancelFunc
}

func newChatSession(cfg *Config, out io.Writer, logger *slog.Logger, echoUser bool) *chatSession {
	c := client.New(cfg.Server.URL, client.Options{
		SeedTimeout: cfg.Client.SeedTimeout.Duration,
		Logger:      logger,
	})
	store := conversation.NewStore(logger)
	conv := conversation.New(store, c, c, conversation.Options{
		Logger: logger,
		Seen:   dedupe.NewWindow(cfg.Client.DedupeWindow, 0),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &chatSession{
		client:   c,
		store:    store,
		conv:     conv,
		renderer: render.New(out, render.Options{NoColor: noColor, EchoUser: echoUser}),
		logger:   logger,
		changes:  store.Subscribe(ctx),
		cancel:   cancel,
	}
}

// turn submits text and prints changes until the turn ends. The returned
// error is the seed failure or the stream transport error.
func (s *chatSession) turn(ctx context.Context, text string) error {
	done := make(chan error, 1)
	go func() {
		if err := s.conv.Submit(ctx, text); err != nil {
			done <- err
			return
		}
		done <- s.conv.Wait(ctx)
	}()

	for {
		select {
		case ch, ok := <-s.changes:
			if !ok {
				return <-done
			}
			s.renderer.Change(ch)
		case err := <-done:
			s.drain()
			return err
		}
	}
}

// drain prints buffered changes, then anything the feed dropped.
func (s *chatSession) drain() {
	for {
		select {
		case ch, ok := <-s.changes:
			if !ok {
				s.renderer.Sync(s.store.Snapshot())
				return
			}
			s.renderer.Change(ch)
		default:
			s.renderer.Sync(s.store.Snapshot())
			return
		}
	}
}

func (s *chatSession) Close() {
	s.conv.Close()
	s.cancel()
	s.store.Close()
}

// isSeedFailure reports whether err was already shown as an error message.
func isSeedFailure(err error) bool {
	return errors.Is(err, client.ErrSeedRequestFailed)
}

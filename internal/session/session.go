// Package session tracks whether an interactive browser session has been
// authenticated by a human operator.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the authentication state of a Session.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Probe inspects the current page and reports whether the user is logged in.
type Probe func(ctx context.Context) (bool, error)

// Signal blocks until the operator says the login is done.
type Signal interface {
	Wait(ctx context.Context) error
}

// PromptSignal prints Message to Out and waits for a line on In.
type PromptSignal struct {
	In      io.Reader
	Out     io.Writer
	Message string
}

func (p PromptSignal) Wait(ctx context.Context) error {
	msg := p.Message
	if msg == "" {
		msg = "Log in in the browser window, then press ENTER here..."
	}
	if p.Out != nil {
		fmt.Fprintln(p.Out, msg)
	}

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(p.In).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Session moves one way from Unauthenticated to Authenticated.
type Session struct {
	driver Driver
	signal Signal
	log    logrus.FieldLogger
	state  State

	// Settle is slept after the post-login reload.
	Settle time.Duration
	sleep  func(ctx context.Context, d time.Duration) bool
}

func New(d Driver, sig Signal, log logrus.FieldLogger) *Session {
	return &Session{
		driver: d,
		signal: sig,
		log:    log,
		Settle: 2 * time.Second,
		sleep:  sleepContext,
	}
}

func (s *Session) State() State { return s.state }

// Ensure makes sure the session is authenticated. When probe says the user
// is not logged in it waits for the operator signal, reloads the page and
// marks the session authenticated. Once authenticated, Ensure is a no-op.
func (s *Session) Ensure(ctx context.Context, probe Probe) error {
	if s.state == Authenticated {
		return nil
	}

	ok, err := probe(ctx)
	if err != nil {
		return fmt.Errorf("probe login state: %w", err)
	}
	if ok {
		s.state = Authenticated
		return nil
	}

	s.log.Info("login required, waiting for operator")
	if err := s.signal.Wait(ctx); err != nil {
		return fmt.Errorf("wait for login: %w", err)
	}
	if err := s.driver.Reload(ctx); err != nil {
		return fmt.Errorf("reload after login: %w", err)
	}
	if !s.sleep(ctx, s.Settle) {
		return ctx.Err()
	}

	s.state = Authenticated
	s.log.Info("session authenticated")
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

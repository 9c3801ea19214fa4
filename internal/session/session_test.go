package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	Driver
	reloads int
	counts  []int
}

func (f *fakeDriver) Reload(context.Context) error {
	f.reloads++
	return nil
}

func (f *fakeDriver) Count(context.Context, string) (int, error) {
	if len(f.counts) == 0 {
		return 0, nil
	}
	n := f.counts[0]
	f.counts = f.counts[1:]
	return n, nil
}

type countSignal struct{ waits int }

func (c *countSignal) Wait(context.Context) error {
	c.waits++
	return nil
}

func newTestSession(d Driver, sig Signal) *Session {
	log, _ := test.NewNullLogger()
	s := New(d, sig, log)
	s.sleep = func(context.Context, time.Duration) bool { return true }
	return s
}

func TestEnsure_AlreadyLoggedIn(t *testing.T) {
	t.Parallel()

	d, sig := &fakeDriver{}, &countSignal{}
	s := newTestSession(d, sig)

	err := s.Ensure(context.Background(), func(context.Context) (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.Equal(t, Authenticated, s.State())
	assert.Zero(t, sig.waits)
	assert.Zero(t, d.reloads)
}

func TestEnsure_WaitsThenReloads(t *testing.T) {
	t.Parallel()

	d, sig := &fakeDriver{}, &countSignal{}
	s := newTestSession(d, sig)
	probes := 0
	probe := func(context.Context) (bool, error) {
		probes++
		return false, nil
	}

	require.NoError(t, s.Ensure(context.Background(), probe))
	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, 1, sig.waits)
	assert.Equal(t, 1, d.reloads)

	// one-way: no further probing once authenticated
	require.NoError(t, s.Ensure(context.Background(), probe))
	assert.Equal(t, 1, probes)
}

func TestEnsure_ProbeError(t *testing.T) {
	t.Parallel()

	s := newTestSession(&fakeDriver{}, &countSignal{})
	err := s.Ensure(context.Background(), func(context.Context) (bool, error) {
		return false, errors.New("no page")
	})
	require.Error(t, err)
	assert.Equal(t, Unauthenticated, s.State())
}

func TestPromptSignal(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	p := PromptSignal{In: strings.NewReader("\n"), Out: &out, Message: "press enter"}
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, "press enter\n", out.String())
}

func TestWaitFor(t *testing.T) {
	t.Parallel()

	d := &fakeDriver{counts: []int{0, 0, 3}}
	ok, err := WaitFor(context.Background(), d, "#rows", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = WaitFor(context.Background(), &fakeDriver{}, "#rows", 5*time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJSString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `"a[title='x\"']"`, jsString(`a[title='x"']`))
}

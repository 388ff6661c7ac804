package log_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/garagevoting/garage-node/log"
)

func TestErrorHook(t *testing.T) {
	c := qt.New(t)

	c.Run("fires on error", func(c *qt.C) {
		ch := make(chan string, 1)
		previous := log.EnablePanicOnErrorWithHandler(c.Name(), 50*time.Millisecond, func(msg string) {
			ch <- msg
		})
		defer log.RestoreLogger(previous)

		log.Errorw(nil, "nullifier store unavailable")

		select {
		case got := <-ch:
			c.Assert(got, qt.Matches, `error logged during TestErrorHook/fires_on_error: nullifier store unavailable`)
		case <-time.After(time.Second):
			c.Fatalf("handler did not fire")
		}
	})

	c.Run("ignores warnings", func(c *qt.C) {
		ch := make(chan string, 1)
		previous := log.EnablePanicOnErrorWithHandler(c.Name(), 50*time.Millisecond, func(msg string) {
			ch <- msg
		})
		defer log.RestoreLogger(previous)

		log.Warnw("vote rejected", "reason", "time window")
		log.Info("poll created")

		select {
		case got := <-ch:
			c.Fatalf("unexpected handler call: %s", got)
		case <-time.After(150 * time.Millisecond):
		}
	})
}

func TestLevel(t *testing.T) {
	c := qt.New(t)
	defer log.Init(log.LogLevelError, "stderr", nil)

	log.Init(log.LogLevelDebug, "stderr", nil)
	c.Assert(log.Level(), qt.Equals, log.LogLevelDebug)
	c.Assert(log.ValidLevel("warn"), qt.IsTrue)
	c.Assert(log.ValidLevel("verbose"), qt.IsFalse)
	c.Assert(func() { log.Init("verbose", "stderr", nil) }, qt.PanicMatches, `invalid log level: "verbose"`)
}

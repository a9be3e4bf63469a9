// Package replay drives a session manager from a line-oriented script, one command per line:
//
//	start
//	state Editing
//	event Saved
//	event Click SaveButton
//	wait 2s
//	end
//	flush
//
// Blank lines and lines starting with # are ignored.
package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"ux-telemetry/backend/internal/event/domain"
)

// Op is a script command.
type Op string

const (
	OpStart Op = "start"
	OpState Op = "state"
	OpEvent Op = "event"
	OpWait  Op = "wait"
	OpEnd   Op = "end"
	OpFlush Op = "flush"
)

// Command is one parsed script line.
type Command struct {
	Line int
	Op   Op
	Args []string
	Wait time.Duration
}

// Parse reads a script. It fails on the first malformed line.
func Parse(r io.Reader) ([]Command, error) {
	var cmds []Command
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		cmd := Command{Line: line, Op: Op(strings.ToLower(fields[0])), Args: fields[1:]}
		if err := validate(&cmd); err != nil {
			return nil, fmt.Errorf("replay: line %d: %w", line, err)
		}
		cmds = append(cmds, cmd)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return cmds, nil
}

func validate(c *Command) error {
	switch c.Op {
	case OpStart, OpEnd, OpFlush:
		if len(c.Args) != 0 {
			return fmt.Errorf("%s takes no arguments", c.Op)
		}
	case OpState:
		if len(c.Args) != 1 {
			return fmt.Errorf("state takes exactly one name")
		}
	case OpEvent:
		if len(c.Args) < 1 || len(c.Args) > 2 {
			return fmt.Errorf("event takes NAME [ELEMENT]")
		}
	case OpWait:
		if len(c.Args) != 1 {
			return fmt.Errorf("wait takes a duration")
		}
		d, err := time.ParseDuration(c.Args[0])
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("wait: negative duration %s", d)
		}
		c.Wait = d
	default:
		return fmt.Errorf("unknown command %q", c.Op)
	}
	return nil
}

// Driver is what a script runs against (session.Manager plus the event logger's flush).
type Driver interface {
	StartSession(ctx context.Context) error
	EndSession(ctx context.Context) error
	GoToState(ctx context.Context, target domain.ApplicationState) error
	LogSessionEvent(ctx context.Context, record domain.EventRecord) error
}

// Flusher is event.Logger's ResetLog.
type Flusher interface {
	ResetLog(ctx context.Context)
}

// Runner executes commands in order.
type Runner struct {
	Driver  Driver
	Flusher Flusher
	// Clock serves wait commands and stamps events; nil means the real clock.
	Clock clockwork.Clock
	// KeepGoing continues past command errors; they are all returned at the end.
	KeepGoing bool
}

// Run executes cmds. It stops at the first failing command unless KeepGoing is set, and
// stops when ctx is done.
func (r *Runner) Run(ctx context.Context, cmds []Command) error {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var failures []string
	for _, c := range cmds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.exec(ctx, clock, c); err != nil {
			err = fmt.Errorf("line %d (%s): %w", c.Line, c.Op, err)
			if !r.KeepGoing {
				return err
			}
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("replay: %d command(s) failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, clock clockwork.Clock, c Command) error {
	switch c.Op {
	case OpStart:
		return r.Driver.StartSession(ctx)
	case OpEnd:
		return r.Driver.EndSession(ctx)
	case OpState:
		return r.Driver.GoToState(ctx, domain.ApplicationState{Name: c.Args[0]})
	case OpEvent:
		if len(c.Args) == 2 {
			return r.Driver.LogSessionEvent(ctx, domain.NewUxEventRecord(c.Args[0], c.Args[1], nil, clock.Now()))
		}
		return r.Driver.LogSessionEvent(ctx, domain.NewEventRecord(c.Args[0], clock.Now(), nil))
	case OpWait:
		select {
		case <-clock.After(c.Wait):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case OpFlush:
		if r.Flusher != nil {
			r.Flusher.ResetLog(ctx)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", c.Op)
}

package protocol

import (
	"fmt"
	"time"

	"github.com/nerrad567/flowlab-core/internal/component"
)

// Procedure is one parameter change at an offset from the start of a run.
type Procedure struct {
	Time   time.Duration
	Params component.Params
}

// Entry is the ordered schedule of one component.
type Entry struct {
	Component  component.Component
	Procedures []Procedure
}

// Compiled is a protocol bound to live components and ready to run.
type Compiled struct {
	Name    string
	Entries []Entry
}

// InferredDuration is the offset of the latest procedure.
func (c *Compiled) InferredDuration() time.Duration {
	var d time.Duration
	for _, e := range c.Entries {
		if n := len(e.Procedures); n > 0 && e.Procedures[n-1].Time > d {
			d = e.Procedures[n-1].Time
		}
	}
	return d
}

// Components returns every component in schedule order.
func (c *Compiled) Components() []component.Component {
	out := make([]component.Component, 0, len(c.Entries))
	for _, e := range c.Entries {
		out = append(out, e.Component)
	}
	return out
}

// ProcedureCount returns the total number of procedures.
func (c *Compiled) ProcedureCount() int {
	n := 0
	for _, e := range c.Entries {
		n += len(e.Procedures)
	}
	return n
}

// Validate checks the ordering rules the executor depends on.
func (c *Compiled) Validate() error {
	seen := make(map[string]bool, len(c.Entries))
	for _, e := range c.Entries {
		name := e.Component.Name()
		if seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicateComponent, name)
		}
		seen[name] = true

		if err := checkOrder(name, e.Procedures); err != nil {
			return err
		}
	}
	return nil
}

func checkOrder(name string, procs []Procedure) error {
	var prev time.Duration
	for i, p := range procs {
		if p.Time < 0 {
			return fmt.Errorf("%w: %s step %d at %s", ErrNegativeTime, name, i, p.Time)
		}
		if p.Time < prev {
			return fmt.Errorf("%w: %s step %d at %s follows %s", ErrOutOfOrder, name, i, p.Time, prev)
		}
		prev = p.Time
	}
	return nil
}

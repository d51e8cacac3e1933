package execution

import (
	"sync"

	"github.com/nerrad567/flowlab-core/internal/component"
)

// guarded serialises every state-changing sequence on one component.
type guarded struct {
	mu sync.Mutex
	c  component.Component
}

func guardAll(components []component.Component) []*guarded {
	out := make([]*guarded, len(components))
	for i, c := range components {
		out[i] = &guarded{c: c}
	}
	return out
}

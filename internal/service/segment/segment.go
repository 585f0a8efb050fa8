package segment

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out utterance ids scoped to a session.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Next(sessionId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-utt-%d", sessionId, n)
}

package shutdown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"histeq/internal/logger"
)

type recorder struct {
	mu    *sync.Mutex
	order *[]string
	name  string
	block chan struct{}
}

func (r recorder) Shutdown() {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	*r.order = append(*r.order, r.name)
	r.mu.Unlock()
}

func TestShutdownRunsInReverseOrderOnce(t *testing.T) {
	var mu sync.Mutex
	var order []string

	m := NewManager(logger.NoOp{})
	m.Register("context", recorder{mu: &mu, order: &order, name: "context"})
	m.Register("pipeline", recorder{mu: &mu, order: &order, name: "pipeline"})
	m.Register("viewer", recorder{mu: &mu, order: &order, name: "viewer"})

	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, []string{"viewer", "pipeline", "context"}, order)
	assert.Error(t, m.Context().Err())
	select {
	case <-m.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestShutdownTimesOutStuckComponent(t *testing.T) {
	var mu sync.Mutex
	var order []string
	block := make(chan struct{})
	defer close(block)

	m := NewManager(logger.NoOp{})
	m.timeout = 10 * time.Millisecond
	m.Register("first", recorder{mu: &mu, order: &order, name: "first"})
	m.Register("stuck", recorder{mu: &mu, order: &order, name: "stuck", block: block})

	m.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first"}, order)
}

func TestListenStopsAfterShutdown(t *testing.T) {
	m := NewManager(logger.NoOp{})
	m.Listen()
	m.Listen()
	m.Shutdown()
	<-m.Done()
}

package sink

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

// WriteHook runs before every MemorySink write. Returning an error fails the batch.
type WriteHook func(ctx context.Context, customers []*model.Customer) error

// MemorySink is a document sink keeping everything in process memory. It backs dry runs and tests.
type MemorySink struct {
	opts Options

	mu        sync.Mutex
	products  []model.Product
	seedCount int
	documents map[string][]byte
	hook      WriteHook
	closed    bool
}

func NewMemorySink(opts Options) *MemorySink {
	return &MemorySink{
		opts:      opts.withDefaults(),
		documents: map[string][]byte{},
	}
}

func (m *MemorySink) Name() string { return "memory" }

func (m *MemorySink) Shape() model.Shape { return model.ShapeDocument }

func (m *MemorySink) CostModel() estimation.CostModel {
	return costModels[configuration.SinkMemory]
}

func (m *MemorySink) EnsurePoolSeeded(_ context.Context) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.products) == 0 {
		products := m.opts.generatePool()
		assignProductIDs(products)
		m.products = products
		m.seedCount++
	}
	return append([]model.Product(nil), m.products...), nil
}

func (m *MemorySink) WriteBatch(ctx context.Context, customers []*model.Customer) (int, error) {
	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, customers); err != nil {
			return 0, writeError(m.Name(), err)
		}
	}

	docs := make(map[string][]byte, len(customers))
	for _, c := range customers {
		b, err := json.Marshal(c)
		if err != nil {
			return 0, writeError(m.Name(), err)
		}
		docs[c.ID] = b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range docs {
		m.documents[id] = b
	}
	return len(customers), nil
}

func (m *MemorySink) Check(_ context.Context) error { return nil }

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetWriteHook installs a hook that runs before each write; nil removes it.
func (m *MemorySink) SetWriteHook(hook WriteHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// SeedCount is the number of times the pool was actually generated.
func (m *MemorySink) SeedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seedCount
}

func (m *MemorySink) DocumentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.documents)
}

func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Customers decodes every stored document, ordered by id.
func (m *MemorySink) Customers() ([]*model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customers := make([]*model.Customer, 0, len(m.documents))
	for _, b := range m.documents {
		var c model.Customer
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, err
		}
		customers = append(customers, &c)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID < customers[j].ID })
	return customers, nil
}

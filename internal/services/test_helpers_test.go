package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"retailsales/internal/census"
	"retailsales/internal/lookup"
	"retailsales/internal/shared/testutil"
	"retailsales/pkg/contracts/domain"
	"retailsales/pkg/contracts/events"
)

// MockFetcher is a mock for the census.Fetcher interface
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, q census.Query) (*domain.RawTable, error) {
	args := m.Called(ctx, q)
	raw, _ := args.Get(0).(*domain.RawTable)
	return raw, args.Error(1)
}

// recorder collects notifications in order
type recorder struct {
	mu   sync.Mutex
	msgs []events.Notification
}

func (r *recorder) Notify(_ context.Context, n events.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, n)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, n := range r.msgs {
		out[i] = n.Message
	}
	return out
}

func (r *recorder) last() events.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[len(r.msgs)-1]
}

func testCategories() *lookup.Categories {
	return lookup.NewCategories(map[string]lookup.Category{
		"44X72": {Code: "44X72", OnReport: true, Short: "RetailTotal", Long: "Retail and Food Services: Total"},
		"441":   {Code: "441", OnReport: true, Short: "AutoParts", Long: "Motor Vehicle and Parts Dealers"},
	})
}

// salesFixture holds 14 months for two categories starting 2023-01
func salesFixture(t *testing.T) *domain.RawTable {
	t.Helper()
	rows := testutil.SalesSeries(t, "44X72", "2023-01",
		500, 505, 510, 512, 515, 520, 522, 525, 530, 533, 535, 540, 545, 550)
	rows = append(rows, testutil.SalesSeries(t, "441", "2023-01",
		100, 101, 99, 102, 104, 103, 105, 107, 106, 108, 110, 109, 111, 112)...)
	return testutil.NewRawTable(rows...)
}

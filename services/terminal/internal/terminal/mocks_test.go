package terminal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/appetiteclub/kds/pkg/kds"
	"github.com/appetiteclub/kds/pkg/remote"
	"github.com/appetiteclub/kds/services/terminal/internal/archive"
	"github.com/appetiteclub/kds/services/terminal/internal/cache"
	"github.com/appetiteclub/kds/services/terminal/internal/submit"
)

// MockRemote records every call and answers with the configured error.
type MockRemote struct {
	mu       sync.Mutex
	calls    []string
	Err      error
	Settings []remote.SystemSettingsPatch
	Chin     []kds.Chinchiro
	QR       []kds.QRPrint
	Products []remote.ProductEdit
	Epochs   []int64
}

func (m *MockRemote) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.Err
}

func (m *MockRemote) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockRemote) UpdateOrderStatus(ctx context.Context, orderNo, status string) error {
	return m.record("status " + orderNo + " " + status)
}

func (m *MockRemote) CancelOrder(ctx context.Context, orderNo, reason string) error {
	return m.record("cancel " + orderNo + " " + reason)
}

func (m *MockRemote) ReprintOrder(ctx context.Context, orderNo string) error {
	return m.record("reprint " + orderNo)
}

func (m *MockRemote) MarkCooked(ctx context.Context, orderNo string) error {
	return m.record("cooked " + orderNo)
}

func (m *MockRemote) MarkPicked(ctx context.Context, orderNo string) error {
	return m.record("picked " + orderNo)
}

func (m *MockRemote) EndSession(ctx context.Context) error {
	return m.record("session end")
}

func (m *MockRemote) ResetSystem(ctx context.Context) error {
	return m.record("system reset")
}

func (m *MockRemote) SetTime(ctx context.Context, epoch int64) error {
	m.mu.Lock()
	m.Epochs = append(m.Epochs, epoch)
	m.mu.Unlock()
	return m.record("time set")
}

func (m *MockRemote) SaveSystemSettings(ctx context.Context, patch remote.SystemSettingsPatch) error {
	m.mu.Lock()
	m.Settings = append(m.Settings, patch)
	m.mu.Unlock()
	return m.record("settings system")
}

func (m *MockRemote) SaveChinchiro(ctx context.Context, cfg kds.Chinchiro) error {
	m.mu.Lock()
	m.Chin = append(m.Chin, cfg)
	m.mu.Unlock()
	return m.record("settings chinchiro")
}

func (m *MockRemote) SaveQRPrint(ctx context.Context, cfg kds.QRPrint) error {
	m.mu.Lock()
	m.QR = append(m.QR, cfg)
	m.mu.Unlock()
	return m.record("settings qrprint")
}

func (m *MockRemote) SaveProducts(ctx context.Context, category string, items []remote.ProductEdit) error {
	m.mu.Lock()
	m.Products = append(m.Products, items...)
	m.mu.Unlock()
	return m.record("products " + category)
}

// MockSubmitter stands in for the submission pipeline.
type MockSubmitter struct {
	SubmitFunc func(ctx context.Context) (string, error)
	AwaitErr   error
	awaits     int
	mu         sync.Mutex
}

func (m *MockSubmitter) Submit(ctx context.Context) (string, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx)
	}
	return "0001", nil
}

func (m *MockSubmitter) Await(ctx context.Context) error {
	m.mu.Lock()
	m.awaits++
	m.mu.Unlock()
	return m.AwaitErr
}

func (m *MockSubmitter) Status() submit.Status {
	return submit.Status{MaxAttempts: submit.DefaultAttempts}
}

type MockLoader struct {
	mu          sync.Mutex
	MenuForces  []bool
	CallLists   int
	Invalidated int
	Summary     kds.SalesSummary
	SummaryErr  error
}

func (m *MockLoader) LoadState(ctx context.Context, force bool) (cache.Result, error) {
	return cache.Result{Source: cache.SourceNetwork, Applied: true}, nil
}

func (m *MockLoader) LoadMenu(ctx context.Context, force bool) (cache.Result, error) {
	m.mu.Lock()
	m.MenuForces = append(m.MenuForces, force)
	m.mu.Unlock()
	return cache.Result{Source: cache.SourceNetwork, Applied: true}, nil
}

func (m *MockLoader) LoadCallList(ctx context.Context) (cache.Result, error) {
	m.mu.Lock()
	m.CallLists++
	m.mu.Unlock()
	return cache.Result{Source: cache.SourceNetwork, Applied: true}, nil
}

func (m *MockLoader) LoadSalesSummary(ctx context.Context, rebuild bool) (kds.SalesSummary, error) {
	return m.Summary, m.SummaryErr
}

func (m *MockLoader) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	m.Invalidated++
	m.mu.Unlock()
	return nil
}

func (m *MockLoader) menuForces() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.MenuForces...)
}

func (m *MockLoader) callLists() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallLists
}

type MockReloader struct {
	mu    sync.Mutex
	count int
}

func (m *MockReloader) ScheduleReload() {
	m.mu.Lock()
	m.count++
	m.mu.Unlock()
}

func (m *MockReloader) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

type MockArchive struct {
	mu        sync.Mutex
	Orders    map[string]archive.Resolved
	Recent    []kds.Order
	refreshes int
}

func (m *MockArchive) GetOrder(ctx context.Context, orderNo string) (archive.Resolved, bool) {
	r, ok := m.Orders[orderNo]
	return r, ok
}

func (m *MockArchive) RecentOrders(ctx context.Context) []kds.Order {
	return m.Recent
}

func (m *MockArchive) Refresh(ctx context.Context) error {
	m.mu.Lock()
	m.refreshes++
	m.mu.Unlock()
	return nil
}

func (m *MockArchive) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

type MockPublisher struct {
	mu       sync.Mutex
	topics   []string
	messages [][]byte
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockPublisher) Messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.messages...)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

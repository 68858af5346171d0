package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

// MemoryStore is the in-process implementation of the order and effect
// boundaries. Effect creation takes the same lookup-then-insert path as the
// SQL store, serialized by one mutex.
type MemoryStore struct {
	mu          sync.Mutex
	orders      []memoryOrder
	returns     map[string]string    // idempotency key -> rma id
	labels      map[string][2]string // rma id -> {label id, url}
	escalations map[string]string    // idempotency key -> ticket id
	artifacts   map[string]struct{}  // every created artifact id, for audits
	toolCalls   []ToolCallRecord
	now         func() time.Time
}

// ToolCallRecord is one audit-log entry kept by the in-memory store.
type ToolCallRecord struct {
	ToolName      string
	ErrorMessage  string
	LatencyMillis int64
	At            time.Time
}

type memoryOrder struct {
	orderID      string
	merchantID   string
	email        string
	phoneLast4   string
	itemID       string
	itemCategory string
	orderDate    time.Time
	deliveryDate *time.Time
	itemPrice    string
	shippingFee  string
	status       string
}

var (
	_ contractx.OrderStore     = (*MemoryStore)(nil)
	_ contractx.EffectStore    = (*MemoryStore)(nil)
	_ contractx.ToolCallLogger = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		returns:     make(map[string]string),
		labels:      make(map[string][2]string),
		escalations: make(map[string]string),
		artifacts:   make(map[string]struct{}),
		now:         time.Now,
	}
}

// AddOrder registers an order snapshot source. DeliveryDate may be nil.
func (m *MemoryStore) AddOrder(orderID, merchantID, email, phoneLast4, itemID, itemCategory string,
	orderDate time.Time, deliveryDate *time.Time, itemPrice, shippingFee, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, memoryOrder{
		orderID:      orderID,
		merchantID:   merchantID,
		email:        email,
		phoneLast4:   phoneLast4,
		itemID:       itemID,
		itemCategory: itemCategory,
		orderDate:    orderDate,
		deliveryDate: deliveryDate,
		itemPrice:    itemPrice,
		shippingFee:  shippingFee,
		status:       status,
	})
}

func (m *MemoryStore) LookupOrder(_ context.Context, id contractx.Identifier) (*contractx.OrderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].matches(id) {
			return m.orders[i].snapshot()
		}
	}
	return nil, contractx.ErrOrderNotFound
}

func (m *MemoryStore) ListOrders(_ context.Context, id contractx.Identifier) ([]contractx.OrderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []contractx.OrderSnapshot
	for i := range m.orders {
		if m.orders[i].matches(id) {
			snap, err := m.orders[i].snapshot()
			if err != nil {
				return nil, err
			}
			out = append(out, *snap)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListOrderItems(_ context.Context, orderID string) ([]contractx.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].orderID == orderID {
			return []contractx.OrderItem{{
				ItemID:       m.orders[i].itemID,
				ItemCategory: m.orders[i].itemCategory,
			}}, nil
		}
	}
	return nil, contractx.ErrOrderNotFound
}

func (m *MemoryStore) CreateReturn(_ context.Context, orderID, itemID, method string) (string, error) {
	key := ReturnKey(orderID, itemID, method)
	m.mu.Lock()
	defer m.mu.Unlock()
	if rmaID, ok := m.returns[key]; ok {
		return rmaID, nil
	}
	rmaID := artifactID("RMA", key)
	m.returns[key] = rmaID
	m.artifacts[rmaID] = struct{}{}
	return rmaID, nil
}

func (m *MemoryStore) CreateLabel(_ context.Context, rmaID string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pair, ok := m.labels[rmaID]; ok {
		return pair[0], pair[1], nil
	}
	labelID := artifactID("LBL", rmaID)
	url := LabelURL(labelID)
	m.labels[rmaID] = [2]string{labelID, url}
	m.artifacts[labelID] = struct{}{}
	return labelID, url, nil
}

func (m *MemoryStore) CreateEscalation(_ context.Context, caseID string, reason contractx.Reason, _ map[string]any) (string, error) {
	key := EscalationKey(caseID, string(reason))
	m.mu.Lock()
	defer m.mu.Unlock()
	if ticketID, ok := m.escalations[key]; ok {
		return ticketID, nil
	}
	ticketID := artifactID("ESC", key)
	m.escalations[key] = ticketID
	m.artifacts[ticketID] = struct{}{}
	return ticketID, nil
}

func (m *MemoryStore) LogToolCall(_ context.Context, toolName string, _, _ any, errMsg string, latencyMillis int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = append(m.toolCalls, ToolCallRecord{
		ToolName:      toolName,
		ErrorMessage:  errMsg,
		LatencyMillis: latencyMillis,
		At:            m.now().UTC(),
	})
}

// ToolCallLog returns a copy of the recorded audit entries.
func (m *MemoryStore) ToolCallLog() []ToolCallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ToolCallRecord(nil), m.toolCalls...)
}

// ArtifactCount reports how many distinct artifacts have ever been created.
func (m *MemoryStore) ArtifactCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.artifacts)
}

func (o *memoryOrder) matches(id contractx.Identifier) bool {
	switch id.Kind {
	case contractx.IdentifierOrderID:
		return o.orderID == id.Value
	case contractx.IdentifierEmail:
		return o.email == id.Value
	case contractx.IdentifierPhoneLast4:
		return o.phoneLast4 == id.Value
	default:
		return false
	}
}

func (o *memoryOrder) snapshot() (*contractx.OrderSnapshot, error) {
	price, err := decimal.NewFromString(o.itemPrice)
	if err != nil {
		return nil, err
	}
	shipping, err := decimal.NewFromString(o.shippingFee)
	if err != nil {
		return nil, err
	}
	var delivery *time.Time
	if o.deliveryDate != nil {
		d := *o.deliveryDate
		delivery = &d
	}
	return &contractx.OrderSnapshot{
		OrderID:             o.orderID,
		MerchantID:          o.merchantID,
		CustomerEmailMasked: maskEmail(o.email),
		CustomerPhoneLast4:  o.phoneLast4,
		ItemID:              o.itemID,
		ItemCategory:        o.itemCategory,
		OrderDate:           o.orderDate,
		DeliveryDate:        delivery,
		ItemPrice:           price,
		ShippingFee:         shipping,
		Status:              o.status,
	}, nil
}

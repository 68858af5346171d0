package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

type fakeOrderStore struct {
	order   *contractx.OrderSnapshot
	lookErr error
}

func (f *fakeOrderStore) LookupOrder(_ context.Context, id contractx.Identifier) (*contractx.OrderSnapshot, error) {
	if f.lookErr != nil {
		return nil, f.lookErr
	}
	if f.order == nil {
		return nil, contractx.ErrOrderNotFound
	}
	return f.order, nil
}

func (f *fakeOrderStore) ListOrders(_ context.Context, id contractx.Identifier) ([]contractx.OrderSnapshot, error) {
	if f.order == nil {
		return nil, nil
	}
	return []contractx.OrderSnapshot{*f.order}, nil
}

func (f *fakeOrderStore) ListOrderItems(_ context.Context, orderID string) ([]contractx.OrderItem, error) {
	return []contractx.OrderItem{{ItemID: "ITM-2001", ItemCategory: "electronics"}}, nil
}

type fakeEffectStore struct {
	returnErr error
	rmaID     string
}

func (f *fakeEffectStore) CreateReturn(_ context.Context, orderID, itemID, method string) (string, error) {
	if f.returnErr != nil {
		return "", f.returnErr
	}
	return f.rmaID, nil
}

func (f *fakeEffectStore) CreateLabel(_ context.Context, rmaID string) (string, string, error) {
	return "LBL-1", "https://labels.local/LBL-1.pdf", nil
}

func (f *fakeEffectStore) CreateEscalation(_ context.Context, caseID string, reason contractx.Reason, _ map[string]any) (string, error) {
	return "ESC-1", nil
}

type loggedCall struct {
	tool   string
	errMsg string
}

type recordingLogger struct {
	calls []loggedCall
}

func (r *recordingLogger) LogToolCall(_ context.Context, toolName string, _, _ any, errMsg string, _ int64) {
	r.calls = append(r.calls, loggedCall{tool: toolName, errMsg: errMsg})
}

func testOrder() *contractx.OrderSnapshot {
	d := time.Now().UTC().AddDate(0, 0, -5)
	return &contractx.OrderSnapshot{
		OrderID:      "ORD-1001",
		ItemID:       "ITM-2001",
		ItemCategory: "electronics",
		DeliveryDate: &d,
		ItemPrice:    decimal.RequireFromString("120.00"),
		ShippingFee:  decimal.RequireFromString("10.00"),
	}
}

func TestLookupOrderNotFoundIsResult(t *testing.T) {
	t.Parallel()

	log := &recordingLogger{}
	g, err := NewGateway(&fakeOrderStore{}, &fakeEffectStore{}, log)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	res, err := g.LookupOrder(context.Background(), contractx.Identifier{
		Kind: contractx.IdentifierOrderID, Value: "ORD-9999",
	})
	if err != nil {
		t.Fatalf("LookupOrder() error = %v", err)
	}
	if res.Found {
		t.Fatal("expected not found")
	}
	if len(log.calls) != 1 || log.calls[0].tool != ToolLookupOrder || log.calls[0].errMsg != "" {
		t.Fatalf("unexpected call log: %+v", log.calls)
	}
}

func TestLookupOrderStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("store down")
	log := &recordingLogger{}
	g, _ := NewGateway(&fakeOrderStore{lookErr: boom}, &fakeEffectStore{}, log)

	_, err := g.LookupOrder(context.Background(), contractx.Identifier{
		Kind: contractx.IdentifierOrderID, Value: "ORD-1001",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(log.calls) != 1 || log.calls[0].errMsg != "store down" {
		t.Fatalf("error not recorded in call log: %+v", log.calls)
	}
}

func TestPolicyToolsAreLogged(t *testing.T) {
	t.Parallel()

	log := &recordingLogger{}
	g, _ := NewGateway(&fakeOrderStore{order: testOrder()}, &fakeEffectStore{}, log)
	ctx := context.Background()
	order := *testOrder()

	pol := g.GetPolicy(ctx, PolicyRequest{
		ItemCategory: order.ItemCategory,
		Reason:       contractx.ReasonDamaged,
		DeliveryDate: order.DeliveryDate,
	})
	verdict := g.CheckEligibility(ctx, order, pol, contractx.ReasonDamaged, time.Now())
	refund := g.ComputeRefund(ctx, order, pol, contractx.ReasonDamaged)

	if !verdict.Eligible {
		t.Fatalf("expected eligible verdict, got %q", verdict.DecisionReason)
	}
	if refund.Amount.StringFixed(2) != "130.00" {
		t.Fatalf("refund = %s", refund.Amount.StringFixed(2))
	}

	want := []string{ToolGetPolicy, ToolCheckEligibility, ToolComputeRefund}
	if len(log.calls) != len(want) {
		t.Fatalf("call log length = %d, want %d", len(log.calls), len(want))
	}
	for i, name := range want {
		if log.calls[i].tool != name {
			t.Fatalf("call %d = %s, want %s", i, log.calls[i].tool, name)
		}
	}
}

func TestCreateReturnErrorRecorded(t *testing.T) {
	t.Parallel()

	boom := errors.New("insert failed")
	log := &recordingLogger{}
	g, _ := NewGateway(&fakeOrderStore{order: testOrder()}, &fakeEffectStore{returnErr: boom}, log)

	_, err := g.CreateReturn(context.Background(), "ORD-1001", "ITM-2001", ReturnMethod)
	if !errors.Is(err, boom) {
		t.Fatalf("expected effect error, got %v", err)
	}
	if !errors.Is(err, contractx.ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed wrap, got %v", err)
	}
	if len(log.calls) != 1 || log.calls[0].errMsg != "insert failed" {
		t.Fatalf("error not recorded: %+v", log.calls)
	}
}

func TestNewGatewayRequiresStores(t *testing.T) {
	t.Parallel()

	if _, err := NewGateway(nil, &fakeEffectStore{}, nil); err == nil {
		t.Fatal("expected error for nil order store")
	}
	if _, err := NewGateway(&fakeOrderStore{}, nil, nil); err == nil {
		t.Fatal("expected error for nil effect store")
	}
	if _, err := NewGateway(&fakeOrderStore{}, &fakeEffectStore{}, nil); err != nil {
		t.Fatalf("nil logger must default to nop, got %v", err)
	}
}

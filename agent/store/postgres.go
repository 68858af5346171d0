package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

type orderRow struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID            string     `bun:"order_id,pk"`
	MerchantID         string     `bun:"merchant_id,notnull"`
	CustomerEmail      string     `bun:"customer_email,notnull"`
	CustomerPhoneLast4 string     `bun:"customer_phone_last4,notnull"`
	ItemID             string     `bun:"item_id,notnull"`
	ItemCategory       string     `bun:"item_category,notnull"`
	OrderDate          time.Time  `bun:"order_date,notnull"`
	DeliveryDate       *time.Time `bun:"delivery_date"`
	ItemPrice          string     `bun:"item_price,notnull"`
	ShippingFee        string     `bun:"shipping_fee,notnull"`
	Status             string     `bun:"status,notnull"`
}

type returnRow struct {
	bun.BaseModel `bun:"table:returns"`

	RMAID          string    `bun:"rma_id,pk"`
	IdempotencyKey string    `bun:"idempotency_key,notnull,unique"`
	OrderID        string    `bun:"order_id,notnull"`
	ItemID         string    `bun:"item_id,notnull"`
	Method         string    `bun:"method,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

type labelRow struct {
	bun.BaseModel `bun:"table:labels"`

	LabelID   string    `bun:"label_id,pk"`
	RMAID     string    `bun:"rma_id,notnull,unique"`
	LabelURL  string    `bun:"label_url,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type escalationRow struct {
	bun.BaseModel `bun:"table:escalations"`

	TicketID       string    `bun:"ticket_id,pk"`
	IdempotencyKey string    `bun:"idempotency_key,notnull,unique"`
	CaseID         string    `bun:"case_id,notnull"`
	Reason         string    `bun:"reason,notnull"`
	Evidence       []byte    `bun:"evidence,type:jsonb"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

type toolCallLogRow struct {
	bun.BaseModel `bun:"table:tool_call_logs"`

	ID              int64     `bun:"id,pk,autoincrement"`
	ToolName        string    `bun:"tool_name,notnull"`
	RequestPayload  []byte    `bun:"request_payload,type:jsonb"`
	ResponsePayload []byte    `bun:"response_payload,type:jsonb"`
	ErrorMessage    string    `bun:"error_message"`
	LatencyMillis   int64     `bun:"latency_ms,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
}

// PostgresStore implements the order store, the idempotent effect store and
// the tool call log over one bun connection.
type PostgresStore struct {
	db  *bun.DB
	now func() time.Time
}

var (
	_ contractx.OrderStore     = (*PostgresStore)(nil)
	_ contractx.EffectStore    = (*PostgresStore)(nil)
	_ contractx.ToolCallLogger = (*PostgresStore)(nil)
)

func NewPostgresStore(db *bun.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

// Migrate creates all tables. Safe to call on every start.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	models := []any{
		(*orderRow)(nil),
		(*returnRow)(nil),
		(*labelRow)(nil),
		(*escalationRow)(nil),
		(*toolCallLogRow)(nil),
	}
	for _, m := range models {
		if _, err := p.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}

// SeedOrders inserts the demo orders when the table is empty.
func (p *PostgresStore) SeedOrders(ctx context.Context) error {
	count, err := p.db.NewSelect().Model((*orderRow)(nil)).Count(ctx)
	if err != nil {
		return fmt.Errorf("count orders: %w", err)
	}
	if count > 0 {
		return nil
	}

	// Relative dates keep the demo orders inside their return windows.
	now := p.now().UTC()
	d1 := now.AddDate(0, 0, -5)
	d2 := now.AddDate(0, 0, -8)
	rows := []orderRow{
		{
			OrderID:            "ORD-1001",
			MerchantID:         "M-001",
			CustomerEmail:      "alice@example.com",
			CustomerPhoneLast4: "1234",
			ItemID:             "ITEM-1",
			ItemCategory:       "electronics",
			OrderDate:          now.AddDate(0, 0, -9),
			DeliveryDate:       &d1,
			ItemPrice:          "120.00",
			ShippingFee:        "10.00",
			Status:             "delivered",
		},
		{
			OrderID:            "ORD-1002",
			MerchantID:         "M-001",
			CustomerEmail:      "bob@example.com",
			CustomerPhoneLast4: "5678",
			ItemID:             "ITEM-2",
			ItemCategory:       "fashion",
			OrderDate:          now.AddDate(0, 0, -12),
			DeliveryDate:       &d2,
			ItemPrice:          "55.00",
			ShippingFee:        "5.00",
			Status:             "delivered",
		},
	}
	if _, err := p.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("seed orders: %w", err)
	}
	return nil
}

func (p *PostgresStore) LookupOrder(ctx context.Context, id contractx.Identifier) (*contractx.OrderSnapshot, error) {
	row := new(orderRow)
	q := p.db.NewSelect().Model(row).Limit(1)
	switch id.Kind {
	case contractx.IdentifierOrderID:
		q = q.Where("order_id = ?", id.Value)
	case contractx.IdentifierEmail:
		q = q.Where("customer_email = ?", id.Value)
	case contractx.IdentifierPhoneLast4:
		q = q.Where("customer_phone_last4 = ?", id.Value)
	default:
		return nil, fmt.Errorf("%w: unknown identifier kind %q", contractx.ErrValidation, id.Kind)
	}

	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contractx.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup order: %w", err)
	}
	return snapshotFromRow(row)
}

func (p *PostgresStore) ListOrders(ctx context.Context, id contractx.Identifier) ([]contractx.OrderSnapshot, error) {
	var rows []orderRow
	q := p.db.NewSelect().Model(&rows).Order("order_id ASC")
	switch id.Kind {
	case contractx.IdentifierOrderID:
		q = q.Where("order_id = ?", id.Value)
	case contractx.IdentifierEmail:
		q = q.Where("customer_email = ?", id.Value)
	case contractx.IdentifierPhoneLast4:
		q = q.Where("customer_phone_last4 = ?", id.Value)
	default:
		return nil, fmt.Errorf("%w: unknown identifier kind %q", contractx.ErrValidation, id.Kind)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]contractx.OrderSnapshot, 0, len(rows))
	for i := range rows {
		snap, err := snapshotFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, *snap)
	}
	return orders, nil
}

func (p *PostgresStore) ListOrderItems(ctx context.Context, orderID string) ([]contractx.OrderItem, error) {
	snap, err := p.LookupOrder(ctx, contractx.Identifier{Kind: contractx.IdentifierOrderID, Value: orderID})
	if err != nil {
		return nil, err
	}
	return []contractx.OrderItem{{ItemID: snap.ItemID, ItemCategory: snap.ItemCategory}}, nil
}

// CreateReturn inserts under the return's idempotency key. The unique
// constraint plus ON CONFLICT DO NOTHING makes the lookup-then-insert atomic
// against concurrent retries of the same key.
func (p *PostgresStore) CreateReturn(ctx context.Context, orderID, itemID, method string) (string, error) {
	key := ReturnKey(orderID, itemID, method)
	row := &returnRow{
		RMAID:          artifactID("RMA", key),
		IdempotencyKey: key,
		OrderID:        orderID,
		ItemID:         itemID,
		Method:         method,
		CreatedAt:      p.now().UTC(),
	}
	_, err := p.db.NewInsert().
		Model(row).
		On("CONFLICT (idempotency_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("create return: %w", err)
	}

	existing := new(returnRow)
	if err := p.db.NewSelect().Model(existing).Where("idempotency_key = ?", key).Scan(ctx); err != nil {
		return "", fmt.Errorf("read return record: %w", err)
	}
	return existing.RMAID, nil
}

func (p *PostgresStore) CreateLabel(ctx context.Context, rmaID string) (string, string, error) {
	labelID := artifactID("LBL", rmaID)
	row := &labelRow{
		LabelID:   labelID,
		RMAID:     rmaID,
		LabelURL:  LabelURL(labelID),
		CreatedAt: p.now().UTC(),
	}
	_, err := p.db.NewInsert().
		Model(row).
		On("CONFLICT (rma_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return "", "", fmt.Errorf("create label: %w", err)
	}

	existing := new(labelRow)
	if err := p.db.NewSelect().Model(existing).Where("rma_id = ?", rmaID).Scan(ctx); err != nil {
		return "", "", fmt.Errorf("read label record: %w", err)
	}
	return existing.LabelID, existing.LabelURL, nil
}

func (p *PostgresStore) CreateEscalation(ctx context.Context, caseID string, reason contractx.Reason, evidence map[string]any) (string, error) {
	key := EscalationKey(caseID, string(reason))
	payload, err := json.Marshal(evidence)
	if err != nil {
		return "", fmt.Errorf("marshal escalation evidence: %w", err)
	}
	row := &escalationRow{
		TicketID:       artifactID("ESC", key),
		IdempotencyKey: key,
		CaseID:         caseID,
		Reason:         string(reason),
		Evidence:       payload,
		CreatedAt:      p.now().UTC(),
	}
	_, err = p.db.NewInsert().
		Model(row).
		On("CONFLICT (idempotency_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("create escalation: %w", err)
	}

	existing := new(escalationRow)
	if err := p.db.NewSelect().Model(existing).Where("idempotency_key = ?", key).Scan(ctx); err != nil {
		return "", fmt.Errorf("read escalation record: %w", err)
	}
	return existing.TicketID, nil
}

func (p *PostgresStore) LogToolCall(ctx context.Context, toolName string, request, response any, errMsg string, latencyMillis int64) {
	requestPayload, err := json.Marshal(request)
	if err != nil {
		requestPayload = nil
	}
	var responsePayload []byte
	if response != nil {
		if encoded, err := json.Marshal(response); err == nil {
			responsePayload = encoded
		}
	}
	row := &toolCallLogRow{
		ToolName:        toolName,
		RequestPayload:  requestPayload,
		ResponsePayload: responsePayload,
		ErrorMessage:    errMsg,
		LatencyMillis:   latencyMillis,
		CreatedAt:       p.now().UTC(),
	}
	// Audit logging must never fail the tool sequence.
	_, _ = p.db.NewInsert().Model(row).Exec(ctx)
}

func snapshotFromRow(row *orderRow) (*contractx.OrderSnapshot, error) {
	price, err := decimal.NewFromString(row.ItemPrice)
	if err != nil {
		return nil, fmt.Errorf("parse item price for %s: %w", row.OrderID, err)
	}
	shipping, err := decimal.NewFromString(row.ShippingFee)
	if err != nil {
		return nil, fmt.Errorf("parse shipping fee for %s: %w", row.OrderID, err)
	}
	return &contractx.OrderSnapshot{
		OrderID:             row.OrderID,
		MerchantID:          row.MerchantID,
		CustomerEmailMasked: maskEmail(row.CustomerEmail),
		CustomerPhoneLast4:  row.CustomerPhoneLast4,
		ItemID:              row.ItemID,
		ItemCategory:        row.ItemCategory,
		OrderDate:           row.OrderDate,
		DeliveryDate:        row.DeliveryDate,
		ItemPrice:           price,
		ShippingFee:         shipping,
		Status:              row.Status,
	}, nil
}

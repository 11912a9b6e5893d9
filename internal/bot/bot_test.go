package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/golab/erplite/internal/ledger"
	"github.com/golab/erplite/internal/settle"
)

type fakeStore struct {
	items []ledger.Item
}

func (f *fakeStore) ListItems(ctx context.Context) ([]ledger.Item, error) {
	return f.items, nil
}

func (f *fakeStore) QueryLowStock(ctx context.Context) ([]ledger.Item, error) {
	var out []ledger.Item
	for _, item := range f.items {
		if item.Deleted() {
			continue
		}
		if item.QtyOnHand < item.QtyMin || item.QtyOnHand <= 0 {
			out = append(out, item)
		}
	}
	return out, nil
}

func testStore() *fakeStore {
	return &fakeStore{items: []ledger.Item{
		{ID: "1", Name: "USB-C 케이블", SKU: "CAB-01", Unit: "EA", QtyOnHand: 1200, QtyMin: 500, AvgCost: 1500, AssetValue: 1800000, Status: ledger.StatusNormal},
		{ID: "2", Name: "모니터 27인치", SKU: "MON-27", Unit: "EA", QtyOnHand: 2, QtyMin: 10, AvgCost: 250000, AssetValue: 500000, Status: ledger.StatusRisk},
		{ID: "3", Name: "폐기된 품목", SKU: "OLD-99", QtyOnHand: 0, QtyMin: 5, Status: ledger.StatusDeleted},
	}}
}

type fakeSettle struct {
	records []settle.Record
	err     error
}

func (f *fakeSettle) List(ctx context.Context, filter settle.ListFilter) ([]settle.Record, settle.Summary, error) {
	if f.err != nil {
		return nil, settle.Summary{}, f.err
	}
	return f.records, settle.Summarize(f.records), nil
}

func testSettle() *fakeSettle {
	day := time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC)
	return &fakeSettle{records: []settle.Record{
		{ID: "s1", Partner: "AGC", Date: day, Revenue: 1000000, MyProfit: 168000, PaymentReceived: false},
		{ID: "s2", Partner: "AGC", Date: day, Revenue: 500000, MyProfit: 84000, PaymentReceived: true},
		{ID: "s3", Partner: "동양상사", Date: day, Revenue: 650000, MyProfit: 109200, PaymentReceived: false},
	}}
}

func TestStockQuery(t *testing.T) {
	b := New(testStore(), nil, nil, nil)
	ctx := context.Background()

	reply, err := b.HandleCommand(ctx, "chat1", "/s 모니터")
	require.NoError(t, err)
	require.Contains(t, reply, "모니터 27인치 (MON-27)")
	require.Contains(t, reply, "부족분: 8")

	// Korean alias and SKU matching.
	reply, err = b.HandleCommand(ctx, "chat1", "/재고 cab-01")
	require.NoError(t, err)
	require.Contains(t, reply, "USB-C 케이블")
	require.Contains(t, reply, "1,200")
}

func TestStockQueryNoMatch(t *testing.T) {
	b := New(testStore(), nil, nil, nil)
	reply, err := b.HandleCommand(context.Background(), "chat1", "/s 없는품목")
	require.NoError(t, err)
	require.Contains(t, reply, "검색 결과가 없습니다")
}

func TestDeletedItemsHiddenFromQueries(t *testing.T) {
	b := New(testStore(), nil, nil, nil)
	reply, err := b.HandleCommand(context.Background(), "chat1", "/s 폐기된")
	require.NoError(t, err)
	require.Contains(t, reply, "검색 결과가 없습니다")
}

func TestPriceQuery(t *testing.T) {
	b := New(testStore(), nil, nil, nil)
	reply, err := b.HandleCommand(context.Background(), "chat1", "/p 모니터")
	require.NoError(t, err)
	require.Contains(t, reply, "₩250,000")
	require.Contains(t, reply, "재고가치")
}

func TestLowQuery(t *testing.T) {
	b := New(testStore(), nil, nil, nil)
	reply, err := b.HandleCommand(context.Background(), "chat1", "/low")
	require.NoError(t, err)
	require.Contains(t, reply, "부족 품목 1건")
	require.Contains(t, reply, "모니터 27인치")

	empty := New(&fakeStore{}, nil, nil, nil)
	reply, err = empty.HandleCommand(context.Background(), "chat1", "/부족")
	require.NoError(t, err)
	require.Contains(t, reply, "모든 재고 정상")
}

func TestHelpAndUnknownCommand(t *testing.T) {
	b := New(testStore(), nil, nil, nil)

	reply, err := b.HandleCommand(context.Background(), "chat1", "/help")
	require.NoError(t, err)
	require.Contains(t, reply, "/s [품목]")

	reply, err = b.HandleCommand(context.Background(), "chat1", "/whatever")
	require.NoError(t, err)
	require.Contains(t, reply, "사용 가능한 명령어")
}

func TestAllowedChatGate(t *testing.T) {
	b := New(testStore(), nil, nil, []string{"chat1"})

	reply, err := b.HandleCommand(context.Background(), "intruder", "/s 모니터")
	require.NoError(t, err)
	require.Contains(t, reply, "권한이 없습니다")

	reply, err = b.HandleCommand(context.Background(), "chat1", "/s 모니터")
	require.NoError(t, err)
	require.Contains(t, reply, "모니터")
}

func TestARQuery(t *testing.T) {
	b := New(testStore(), testSettle(), nil, nil)
	reply, err := b.HandleCommand(context.Background(), "chat1", "/ar")
	require.NoError(t, err)
	require.Contains(t, reply, "미수금 요약")
	require.Contains(t, reply, "미수 건수: 2건")
	require.Contains(t, reply, "총 미수금: ₩1,650,000")
	require.Contains(t, reply, "AGC: ₩1,000,000")
	require.Contains(t, reply, "동양상사: ₩650,000")

	// Korean alias.
	reply, err = b.HandleCommand(context.Background(), "chat1", "/미수금")
	require.NoError(t, err)
	require.Contains(t, reply, "미수금 요약")
}

func TestARQueryAllPaid(t *testing.T) {
	day := time.Now().UTC()
	paid := &fakeSettle{records: []settle.Record{
		{ID: "s1", Partner: "AGC", Date: day, Revenue: 1000000, PaymentReceived: true},
	}}
	b := New(testStore(), paid, nil, nil)
	reply, err := b.HandleCommand(context.Background(), "chat1", "/ar")
	require.NoError(t, err)
	require.Contains(t, reply, "미수금 없음")
}

func TestARQueryWithoutSettlements(t *testing.T) {
	b := New(testStore(), nil, nil, nil)
	reply, err := b.HandleCommand(context.Background(), "chat1", "/ar")
	require.NoError(t, err)
	require.Contains(t, reply, "미수금 데이터가 아직 없습니다")
}

func TestARQueryStoreError(t *testing.T) {
	b := New(testStore(), &fakeSettle{err: errors.New("backend down")}, nil, nil)
	_, err := b.HandleCommand(context.Background(), "chat1", "/ar")
	require.Error(t, err)
}

func TestPartnerBriefing(t *testing.T) {
	b := New(testStore(), testSettle(), nil, nil)
	ctx := context.Background()

	reply, err := b.HandleCommand(ctx, "chat1", "/c agc")
	require.NoError(t, err)
	require.Contains(t, reply, "거래처 브리핑: \"agc\"")
	require.Contains(t, reply, "AGC")
	require.Contains(t, reply, "정산 2건 · 매출 ₩1,500,000")
	require.Contains(t, reply, "미수 1건 · ₩1,000,000")
	require.NotContains(t, reply, "동양상사")

	reply, err = b.HandleCommand(ctx, "chat1", "/거래처 없는업체")
	require.NoError(t, err)
	require.Contains(t, reply, "거래처 검색 결과 없음")

	reply, err = b.HandleCommand(ctx, "chat1", "/c")
	require.NoError(t, err)
	require.Contains(t, reply, "사용법: /c [업체명]")
}

func TestCommandBotNameSuffixStripped(t *testing.T) {
	b := New(testStore(), nil, nil, nil)
	reply, err := b.HandleCommand(context.Background(), "chat1", "/low@golab_bot")
	require.NoError(t, err)
	require.Contains(t, reply, "부족 품목 1건")
}

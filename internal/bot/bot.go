// Package bot answers read-only inventory queries over a chat transport.
// All writes go through the web API; the bot only reads and formats.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/golab/erplite/internal/ledger"
	"github.com/golab/erplite/internal/settle"
)

// Sender delivers one message to one chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// StorePort is the read-only slice of the item store the bot needs.
type StorePort interface {
	ListItems(ctx context.Context) ([]ledger.Item, error)
	QueryLowStock(ctx context.Context) ([]ledger.Item, error)
}

// SettlePort is the read-only slice of the settlement service the bot needs
// for receivables and partner briefings.
type SettlePort interface {
	List(ctx context.Context, filter settle.ListFilter) ([]settle.Record, settle.Summary, error)
}

// Bot dispatches chat commands. Korean aliases are first-class: the operator
// types /재고 as often as /s.
type Bot struct {
	store       StorePort
	settlements SettlePort
	logger      *slog.Logger
	allowed     map[string]struct{}
	printer     *message.Printer
}

// New builds a Bot. An empty allowedChatIDs list means every chat is allowed;
// a nil settlements port degrades /ar and /c to a no-data reply.
func New(store StorePort, settlements SettlePort, logger *slog.Logger, allowedChatIDs []string) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]struct{}, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		if id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &Bot{store: store, settlements: settlements, logger: logger, allowed: allowed, printer: message.NewPrinter(language.Korean)}
}

// HandleCommand parses one incoming message and returns the reply text.
// Unknown commands get the help text; unauthorised chats get a denial.
func (b *Bot) HandleCommand(ctx context.Context, chatID, text string) (string, error) {
	if len(b.allowed) > 0 {
		if _, ok := b.allowed[chatID]; !ok {
			b.logger.Warn("unauthorised bot access", slog.String("chat_id", chatID))
			return "⛔ 접근 권한이 없습니다.", nil
		}
	}

	command, keyword := splitCommand(text)
	switch command {
	case "/s", "/stock", "/재고":
		return b.stockQuery(ctx, keyword)
	case "/p", "/price", "/단가":
		return b.priceQuery(ctx, keyword)
	case "/low", "/부족":
		return b.lowQuery(ctx)
	case "/c", "/customer", "/거래처":
		return b.partnerQuery(ctx, keyword)
	case "/ar", "/미수금":
		return b.arQuery(ctx)
	case "/help", "/start", "/도움말":
		return helpText, nil
	default:
		return helpText, nil
	}
}

const helpText = `📖 사용 가능한 명령어

/s [품목] — 재고 조회
/p [품목] — 단가 조회
/low — 부족 품목 목록
/c [업체] — 거래처 브리핑
/ar — 미수금 요약
/help — 도움말

💡 한글 명령어도 지원됩니다 (예: /재고, /단가, /부족, /거래처, /미수금)`

func (b *Bot) stockQuery(ctx context.Context, keyword string) (string, error) {
	if keyword == "" {
		return "사용법: /s [품목명 또는 SKU]", nil
	}
	items, err := b.search(ctx, keyword)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return fmt.Sprintf("🔍 \"%s\" 검색 결과가 없습니다.", keyword), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 재고 조회: \"%s\"\n%s\n", keyword, strings.Repeat("─", 22))
	for _, item := range items {
		fmt.Fprintf(&sb, "📦 %s%s\n", item.Name, skuSuffix(item))
		b.printer.Fprintf(&sb, "   수량: %d / 최소: %d %s · 상태: %s\n",
			round(item.QtyOnHand), round(item.QtyMin), unitOf(item), statusLabel(item.Status))
		if shortfall := item.Shortfall(); shortfall > 0 {
			b.printer.Fprintf(&sb, "   ⚠ 부족분: %d %s\n", round(shortfall), unitOf(item))
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) priceQuery(ctx context.Context, keyword string) (string, error) {
	if keyword == "" {
		return "사용법: /p [품목명 또는 SKU]", nil
	}
	items, err := b.search(ctx, keyword)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return fmt.Sprintf("🔍 \"%s\" 검색 결과가 없습니다.", keyword), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 단가 조회: \"%s\"\n%s\n", keyword, strings.Repeat("─", 22))
	for _, item := range items {
		fmt.Fprintf(&sb, "📦 %s%s\n", item.Name, skuSuffix(item))
		b.printer.Fprintf(&sb, "   평균원가: ₩%d\n", round(item.AvgCost))
		b.printer.Fprintf(&sb, "   재고가치: ₩%d\n", round(item.AssetValue))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) lowQuery(ctx context.Context) (string, error) {
	items, err := b.store.QueryLowStock(ctx)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "✅ 부족 품목이 없습니다. 모든 재고 정상.", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ 부족 품목 %d건\n%s\n", len(items), strings.Repeat("─", 22))
	for _, item := range items {
		fmt.Fprintf(&sb, "📦 %s%s\n", item.Name, skuSuffix(item))
		b.printer.Fprintf(&sb, "   수량: %d / 최소: %d %s\n", round(item.QtyOnHand), round(item.QtyMin), unitOf(item))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) arQuery(ctx context.Context) (string, error) {
	if b.settlements == nil {
		return "📋 미수금 데이터가 아직 없습니다.", nil
	}
	records, summary, err := b.settlements.List(ctx, settle.ListFilter{})
	if err != nil {
		return "", fmt.Errorf("bot: list settlements: %w", err)
	}
	if summary.UnpaidCount == 0 {
		return "✅ 미수금 없음. 모든 정산 완료.", nil
	}

	var total float64
	byPartner := make(map[string]float64)
	for _, r := range records {
		if r.PaymentReceived {
			continue
		}
		total += r.Revenue
		byPartner[r.Partner] += r.Revenue
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💳 미수금 요약\n%s\n", strings.Repeat("─", 22))
	b.printer.Fprintf(&sb, "미수 건수: %d건\n", summary.UnpaidCount)
	fmt.Fprintf(&sb, "%s\n", strings.Repeat("─", 22))
	b.printer.Fprintf(&sb, "총 미수금: ₩%d\n", round(total))

	type share struct {
		partner string
		amount  float64
	}
	shares := make([]share, 0, len(byPartner))
	for partner, amount := range byPartner {
		shares = append(shares, share{partner: partner, amount: amount})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].amount != shares[j].amount {
			return shares[i].amount > shares[j].amount
		}
		return shares[i].partner < shares[j].partner
	})
	sb.WriteString("\n거래처별:\n")
	for i, s := range shares {
		if i == 10 {
			break
		}
		b.printer.Fprintf(&sb, "  %s: ₩%d\n", s.partner, round(s.amount))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) partnerQuery(ctx context.Context, keyword string) (string, error) {
	if keyword == "" {
		return "사용법: /c [업체명]\n예: /c AGC", nil
	}
	noMatch := fmt.Sprintf("🔍 \"%s\" — 거래처 검색 결과 없음", keyword)
	if b.settlements == nil {
		return noMatch, nil
	}
	records, _, err := b.settlements.List(ctx, settle.ListFilter{})
	if err != nil {
		return "", fmt.Errorf("bot: list settlements: %w", err)
	}

	type brief struct {
		partner     string
		count       int
		revenue     float64
		unpaidCount int
		unpaid      float64
	}
	briefs := make(map[string]*brief)
	var order []string
	q := strings.ToLower(keyword)
	for _, r := range records {
		if !strings.Contains(strings.ToLower(r.Partner), q) {
			continue
		}
		bf, ok := briefs[r.Partner]
		if !ok {
			bf = &brief{partner: r.Partner}
			briefs[r.Partner] = bf
			order = append(order, r.Partner)
		}
		bf.count++
		bf.revenue += r.Revenue
		if !r.PaymentReceived {
			bf.unpaidCount++
			bf.unpaid += r.Revenue
		}
	}
	if len(order) == 0 {
		return noMatch, nil
	}
	sort.Strings(order)

	var sb strings.Builder
	fmt.Fprintf(&sb, "🏢 거래처 브리핑: \"%s\"\n%s\n", keyword, strings.Repeat("─", 22))
	for i, partner := range order {
		if i == 10 {
			break
		}
		bf := briefs[partner]
		fmt.Fprintf(&sb, "\n🤝 %s\n", bf.partner)
		b.printer.Fprintf(&sb, "   정산 %d건 · 매출 ₩%d\n", bf.count, round(bf.revenue))
		if bf.unpaidCount > 0 {
			b.printer.Fprintf(&sb, "   미수 %d건 · ₩%d\n", bf.unpaidCount, round(bf.unpaid))
		}
	}
	if extra := len(order) - 10; extra > 0 {
		fmt.Fprintf(&sb, "\n... 외 %d건\n", extra)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// search matches keyword against name and SKU, case-insensitive, skipping
// soft-deleted items.
func (b *Bot) search(ctx context.Context, keyword string) ([]ledger.Item, error) {
	items, err := b.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("bot: list items: %w", err)
	}
	q := strings.ToLower(keyword)
	var out []ledger.Item
	for _, item := range items {
		if item.Deleted() {
			continue
		}
		if strings.Contains(strings.ToLower(item.Name), q) || strings.Contains(strings.ToLower(item.SKU), q) {
			out = append(out, item)
		}
	}
	return out, nil
}

func splitCommand(text string) (command, keyword string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", ""
	}
	command = strings.ToLower(fields[0])
	// In group chats Telegram appends the bot name (/low@golab_bot).
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return command, strings.Join(fields[1:], " ")
}

func skuSuffix(item ledger.Item) string {
	if item.SKU == "" {
		return ""
	}
	return " (" + item.SKU + ")"
}

func unitOf(item ledger.Item) string {
	if item.Unit == "" {
		return "EA"
	}
	return item.Unit
}

func statusLabel(s ledger.Status) string {
	switch s {
	case ledger.StatusNormal:
		return "정상"
	case ledger.StatusRisk:
		return "위험"
	case ledger.StatusOut:
		return "품절"
	case ledger.StatusReserved:
		return "예약"
	case ledger.StatusDeleted:
		return "삭제됨"
	}
	return string(s)
}

func round(v float64) int64 {
	return int64(math.Round(v))
}

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Handler consumes one inbound chat message and produces the reply text.
type Handler interface {
	HandleCommand(ctx context.Context, chatID, text string) (string, error)
}

// Poller long-polls the Telegram getUpdates endpoint and feeds command
// messages to the Handler, replying through the Sender.
type Poller struct {
	token       string
	baseURL     string
	client      *http.Client
	handler     Handler
	sender      Sender
	logger      *slog.Logger
	pollSeconds int
	retryDelay  time.Duration
	offset      int64
}

// NewPoller constructs a poller for the given bot token.
func NewPoller(token string, handler Handler, sender Sender, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		token:   token,
		baseURL: "https://api.telegram.org",
		// Client timeout must exceed the long-poll window.
		client:      &http.Client{Timeout: 40 * time.Second},
		handler:     handler,
		sender:      sender,
		logger:      logger,
		pollSeconds: 25,
		retryDelay:  3 * time.Second,
	}
}

// Run polls until the context is cancelled. Fetch failures back off and
// retry; a flaky Telegram connection must not bring the worker down.
func (p *Poller) Run(ctx context.Context) error {
	for {
		updates, err := p.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("telegram poll failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
			continue
		}
		for _, update := range updates {
			p.offset = update.UpdateID + 1
			p.dispatch(ctx, update)
		}
	}
}

type telegramMessage struct {
	Text string `json:"text"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type getUpdatesResponse struct {
	OK          bool             `json:"ok"`
	Description string           `json:"description"`
	Result      []telegramUpdate `json:"result"`
}

func (p *Poller) fetchUpdates(ctx context.Context) ([]telegramUpdate, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=%d", p.baseURL, p.token, p.offset, p.pollSeconds)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bot: telegram poll: %w", err)
	}
	defer resp.Body.Close()

	var result getUpdatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("bot: decode telegram updates: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("bot: telegram rejected poll: %s", result.Description)
	}
	return result.Result, nil
}

// dispatch routes one update. Non-command chatter is dropped without a reply.
func (p *Poller) dispatch(ctx context.Context, update telegramUpdate) {
	if update.Message == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	reply, err := p.handler.HandleCommand(ctx, chatID, text)
	if err != nil {
		p.logger.Error("bot command failed", slog.String("chat_id", chatID), slog.Any("error", err))
		reply = "⚠️ 처리 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요."
	}
	if reply == "" {
		return
	}
	if err := p.sender.SendMessage(ctx, chatID, reply); err != nil {
		p.logger.Error("bot reply failed", slog.String("chat_id", chatID), slog.Any("error", err))
	}
}

// Package notify delivers operational notifications for purchase
// transitions to a Telegram channel.
package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

// TelegramNotifier sends one message per purchase transition. Delivery is
// best-effort: a notification failure never fails the transition that
// produced it.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *zap.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramNotifier{bot: b, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) PurchaseCompleted(ctx context.Context, purchaseID, walletAddress string, amountCents, totalTokens int64) {
	text := fmt.Sprintf(
		"✅ Purchase completed\nID: %s\nWallet: %s\nAmount: $%d.%02d\nTokens: %s",
		purchaseID, walletAddress, amountCents/100, amountCents%100, formatTokens(totalTokens),
	)
	n.send(ctx, text)
}

func (n *TelegramNotifier) PurchaseFailed(ctx context.Context, purchaseID, walletAddress, reason string) {
	text := fmt.Sprintf(
		"❌ Purchase failed\nID: %s\nWallet: %s\nReason: %s",
		purchaseID, walletAddress, reason,
	)
	n.send(ctx, text)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) {
	if n.bot == nil {
		return
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		n.logger.Warn("send telegram notification", zap.Error(err))
	}
}

// formatTokens renders micro-tokens as a whole-token decimal string.
func formatTokens(microTokens int64) string {
	whole := microTokens / 1_000_000
	frac := microTokens % 1_000_000
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	return fmt.Sprintf("%d.%06d", whole, frac)
}

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// EngineOps is the subset of engine operations the bot drives.
type EngineOps interface {
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetStatusHistory(ctx context.Context, id string) ([]*domain.StatusHistoryEntry, error)
	CancelTransaction(ctx context.Context, id, reason string) (*domain.TransactionResult, error)
	RetryTransaction(ctx context.Context, id string) (*domain.TransactionResult, error)
	ForceStatus(ctx context.Context, id string, to domain.TransactionStatus, reason, actor string) (*domain.TransactionResult, error)
}

// AdminBot exposes engine operations to admins over Telegram.
type AdminBot struct {
	bot      *tgbotapi.BotAPI
	engine   EngineOps
	adminIDs []int64
	stopCh   chan struct{}
	wg       sync.WaitGroup
	log      *slog.Logger
}

// NewAdminBot creates a new admin bot
func NewAdminBot(token string, engine EngineOps, adminIDs []int64) (*AdminBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log := logger.With("component", "admin_bot")
	log.Info("admin bot authorized", "username", bot.Self.UserName)

	return &AdminBot{
		bot:      bot,
		engine:   engine,
		adminIDs: adminIDs,
		stopCh:   make(chan struct{}),
		log:      log,
	}, nil
}

// Start starts listening for commands
func (b *AdminBot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.bot.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.isAdmin(update.Message.From.ID) {
				continue
			}

			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleCommand(msg)
			}(update.Message)
		}
	}
}

// Stop gracefully stops the bot
func (b *AdminBot) Stop() {
	b.log.Info("stopping admin bot...")
	close(b.stopCh)
	b.bot.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("admin bot stopped gracefully")
	case <-time.After(10 * time.Second):
		b.log.Warn("admin bot shutdown timeout, some handlers may not have completed")
	}
}

func (b *AdminBot) isAdmin(userID int64) bool {
	for _, id := range b.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *AdminBot) handleCommand(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "status":
		if len(args) < 1 {
			b.reply(msg, "usage: /status <transaction-id>")
			return
		}
		b.handleStatus(ctx, msg, args[0])

	case "history":
		if len(args) < 1 {
			b.reply(msg, "usage: /history <transaction-id>")
			return
		}
		b.handleHistory(ctx, msg, args[0])

	case "retry":
		if len(args) < 1 {
			b.reply(msg, "usage: /retry <transaction-id>")
			return
		}
		result, err := b.engine.RetryTransaction(ctx, args[0])
		b.replyResult(msg, result, err)

	case "cancel":
		if len(args) < 1 {
			b.reply(msg, "usage: /cancel <transaction-id> [reason]")
			return
		}
		reason := "cancelled by admin"
		if len(args) > 1 {
			reason = strings.Join(args[1:], " ")
		}
		result, err := b.engine.CancelTransaction(ctx, args[0], reason)
		b.replyResult(msg, result, err)

	case "force":
		if len(args) < 3 {
			b.reply(msg, "usage: /force <transaction-id> <STATUS> <reason>")
			return
		}
		actor := fmt.Sprintf("telegram:%d", msg.From.ID)
		result, err := b.engine.ForceStatus(ctx, args[0],
			domain.TransactionStatus(args[1]), strings.Join(args[2:], " "), actor)
		b.replyResult(msg, result, err)

	case "help", "start":
		b.reply(msg, "commands:\n"+
			"/status <id> - transaction status\n"+
			"/history <id> - status transition log\n"+
			"/retry <id> - re-drive a failed transaction\n"+
			"/cancel <id> [reason] - cancel a transaction\n"+
			"/force <id> <STATUS> <reason> - force a status (audited)")
	}
}

func (b *AdminBot) handleStatus(ctx context.Context, msg *tgbotapi.Message, id string) {
	txn, err := b.engine.GetTransaction(ctx, id)
	if err != nil {
		b.reply(msg, "error: "+err.Error())
		return
	}
	b.reply(msg, fmt.Sprintf("transaction %s\ntype: %s\nstatus: %s\nuser: %d\namount: %s %s\nupdated: %s",
		txn.ID, txn.Type, txn.Status, txn.UserID, txn.Amount, txn.Currency,
		txn.UpdatedAt.Format(time.RFC3339)))
}

func (b *AdminBot) handleHistory(ctx context.Context, msg *tgbotapi.Message, id string) {
	history, err := b.engine.GetStatusHistory(ctx, id)
	if err != nil {
		b.reply(msg, "error: "+err.Error())
		return
	}
	if len(history) == 0 {
		b.reply(msg, "no history for "+id)
		return
	}

	var sb strings.Builder
	sb.WriteString("history for " + id + ":\n")
	for _, e := range history {
		from := "-"
		if e.FromStatus != nil {
			from = string(*e.FromStatus)
		}
		fmt.Fprintf(&sb, "%s  %s -> %s  (%s)\n",
			e.CreatedAt.Format("01-02 15:04:05"), from, e.ToStatus, e.Reason)
	}
	b.reply(msg, sb.String())
}

func (b *AdminBot) replyResult(msg *tgbotapi.Message, result *domain.TransactionResult, err error) {
	if err != nil {
		b.reply(msg, "error: "+err.Error())
		return
	}
	if result == nil {
		b.reply(msg, "no result")
		return
	}
	if !result.Success {
		b.reply(msg, fmt.Sprintf("rejected (%s): %s", result.ErrorCode, result.Error))
		return
	}
	b.reply(msg, fmt.Sprintf("ok: %s is now %s. %s", result.TransactionID, result.Status, result.Message))
}

func (b *AdminBot) reply(msg *tgbotapi.Message, text string) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	if _, err := b.bot.Send(reply); err != nil {
		b.log.Error("failed to send reply", "error", err)
	}
}

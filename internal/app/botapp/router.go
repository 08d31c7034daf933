package botapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	tginfra "github.com/rfuntusov-a11y/gencontent/internal/infra/telegram"
	"github.com/rfuntusov-a11y/gencontent/internal/services/quota"
	"github.com/rfuntusov-a11y/gencontent/internal/services/referrals"
)

const (
	greetingMessage    = "🔥 Привет! Я генерирую истории и переписки. Первый запрос — бесплатно. Пиши тему."
	shareMessage       = "📤 Поделись с другом — ему понравится!"
	unknownCommandText = "Неизвестная команда. Пиши тему истории или используй /status, /premium."
	unavailableText    = "Команда недоступна."
	grantUsageText     = "Ошибка. Использование: /grant <user_id> <days>"
	revokeUsageText    = "Ошибка. Использование: /revoke <user_id>"
	noPaymentLinkText  = "Оформить Premium: ссылка на оплату не задана."
	generationFailText = "Не получилось сочинить историю, попробуй ещё раз."

	adBlock = "—\nХотите без рекламы и длиннее истории? Оформите Premium.\nКоманда: /premium"

	defaultPrompt = "короткая история"
)

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	switch update.Command {
	case "start":
		a.handleStart(ctx, update)
	case "grant":
		a.handleGrant(ctx, update)
	case "revoke":
		a.handleRevoke(ctx, update)
	case "status":
		a.handleStatus(ctx, update)
	case "premium":
		a.handlePremium(ctx, update)
	default:
		a.sendText(ctx, update.ChatID, unknownCommandText)
	}
	return nil
}

func (a *App) handleStart(ctx context.Context, update tginfra.CommandUpdate) {
	referrerID := referrals.ParseToken(update.Args)

	created, err := a.referrals.Register(ctx, update.UserID, referrerID, update.Username)
	if err != nil {
		a.logger.Error("register user on /start", zap.Error(err), zap.Int64("user_id", update.UserID))
		return
	}
	if created && referrerID != 0 {
		a.trackEvent(ctx, update.UserID, "referral_attributed", map[string]any{"referrer_id": referrerID})
	}

	a.sendText(ctx, update.ChatID, greetingMessage)
	a.sendShareKeyboard(ctx, update.ChatID, update.UserID)
}

func (a *App) handleGrant(ctx context.Context, update tginfra.CommandUpdate) {
	authorized := a.isAdmin(update.UserID)

	fields := strings.Fields(update.Args)
	if len(fields) != 2 {
		if authorized {
			a.sendText(ctx, update.ChatID, grantUsageText)
		} else {
			a.sendText(ctx, update.ChatID, unavailableText)
		}
		return
	}

	targetID, err1 := strconv.ParseInt(fields[0], 10, 64)
	days, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || targetID <= 0 || days <= 0 {
		if authorized {
			a.sendText(ctx, update.ChatID, grantUsageText)
		} else {
			a.sendText(ctx, update.ChatID, unavailableText)
		}
		return
	}

	if authorized {
		// the engine expects an existing record; create-if-absent first
		if _, err := a.referrals.Register(ctx, targetID, 0, ""); err != nil {
			a.logger.Error("ensure grant target", zap.Error(err), zap.Int64("target_id", targetID))
			return
		}
	}

	until, err := a.quota.Grant(ctx, targetID, time.Duration(days)*24*time.Hour, authorized)
	if err != nil {
		if errors.Is(err, quota.ErrUnauthorized) {
			a.sendText(ctx, update.ChatID, unavailableText)
			return
		}
		a.logger.Error("grant premium", zap.Error(err), zap.Int64("target_id", targetID))
		a.sendText(ctx, update.ChatID, grantUsageText)
		return
	}

	a.trackEvent(ctx, targetID, "premium_granted", map[string]any{"days": days, "until": until.Format(time.RFC3339)})
	a.sendText(ctx, update.ChatID, fmt.Sprintf("Выдал премиум на %d дней юзеру %d (до %s).", days, targetID, until.Format("2006-01-02 15:04")))
}

func (a *App) handleRevoke(ctx context.Context, update tginfra.CommandUpdate) {
	authorized := a.isAdmin(update.UserID)

	fields := strings.Fields(update.Args)
	if len(fields) != 1 {
		if authorized {
			a.sendText(ctx, update.ChatID, revokeUsageText)
		} else {
			a.sendText(ctx, update.ChatID, unavailableText)
		}
		return
	}

	targetID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || targetID <= 0 {
		if authorized {
			a.sendText(ctx, update.ChatID, revokeUsageText)
		} else {
			a.sendText(ctx, update.ChatID, unavailableText)
		}
		return
	}

	if authorized {
		if _, err := a.referrals.Register(ctx, targetID, 0, ""); err != nil {
			a.logger.Error("ensure revoke target", zap.Error(err), zap.Int64("target_id", targetID))
			return
		}
	}

	if err := a.quota.Revoke(ctx, targetID, authorized); err != nil {
		if errors.Is(err, quota.ErrUnauthorized) {
			a.sendText(ctx, update.ChatID, unavailableText)
			return
		}
		a.logger.Error("revoke premium", zap.Error(err), zap.Int64("target_id", targetID))
		a.sendText(ctx, update.ChatID, revokeUsageText)
		return
	}

	a.trackEvent(ctx, targetID, "premium_revoked", nil)
	a.sendText(ctx, update.ChatID, fmt.Sprintf("Отозвал премиум у %d.", targetID))
}

func (a *App) handleStatus(ctx context.Context, update tginfra.CommandUpdate) {
	if _, err := a.referrals.Register(ctx, update.UserID, 0, update.Username); err != nil {
		a.logger.Error("ensure user on /status", zap.Error(err), zap.Int64("user_id", update.UserID))
		return
	}

	user, err := a.users.FindByID(ctx, update.UserID)
	if err != nil {
		a.logger.Error("load user on /status", zap.Error(err), zap.Int64("user_id", update.UserID))
		return
	}

	active, err := a.quota.IsActive(ctx, update.UserID, a.now())
	if err != nil {
		a.logger.Error("premium state on /status", zap.Error(err), zap.Int64("user_id", update.UserID))
		return
	}

	until := "—"
	if user.PremiumUntil != nil {
		until = user.PremiumUntil.UTC().Format(time.RFC3339)
	}

	a.sendText(ctx, update.ChatID, fmt.Sprintf(
		"requests: %d\npremium: %t\npremium_until: %s\nreferrals: %d",
		user.RequestsCount, active, until, user.ReferralsCount,
	))
}

func (a *App) handlePremium(ctx context.Context, update tginfra.CommandUpdate) {
	if _, err := a.referrals.Register(ctx, update.UserID, 0, update.Username); err != nil {
		a.logger.Error("ensure user on /premium", zap.Error(err), zap.Int64("user_id", update.UserID))
		return
	}

	link := a.cfg.Bot.PaymentURL()
	if link == "" {
		a.sendText(ctx, update.ChatID, noPaymentLinkText)
		return
	}

	text := fmt.Sprintf("Оформить Premium: <a href=%q>Оплатить</a>\n\nПосле оплаты пришли чек админу или подожди верификацию.", link)
	if err := a.sender.SendHTML(ctx, update.ChatID, text); err != nil {
		a.logger.Error("send premium message", zap.Error(err), zap.Int64("chat_id", update.ChatID))
	}
}

// handleText is the generation flow: ensure record, flood check, evaluate,
// synthesize, then record usage. The order matters: a synthesis failure must
// not consume quota.
func (a *App) handleText(ctx context.Context, update tginfra.TextUpdate) error {
	if _, err := a.referrals.Register(ctx, update.UserID, 0, update.Username); err != nil {
		a.logger.Error("ensure user on text", zap.Error(err), zap.Int64("user_id", update.UserID))
		return nil
	}

	if a.limiter != nil {
		retryAfter, allowed, err := a.limiter.AllowGeneration(ctx, update.UserID)
		if err != nil {
			a.logger.Warn("generation rate check failed", zap.Error(err), zap.Int64("user_id", update.UserID))
		} else if !allowed {
			a.sendText(ctx, update.ChatID, fmt.Sprintf("Слишком часто. Попробуй через %d сек.", retryAfter))
			return nil
		}
	}

	decision, err := a.quota.Evaluate(ctx, update.UserID)
	if err != nil {
		a.logger.Error("evaluate quota", zap.Error(err), zap.Int64("user_id", update.UserID))
		return nil
	}

	prompt := strings.TrimSpace(update.Text)
	if prompt == "" {
		prompt = defaultPrompt
	}

	story, err := a.stories.Synthesize(prompt)
	if err != nil {
		a.logger.Warn("synthesize story", zap.Error(err), zap.Int64("user_id", update.UserID))
		a.sendText(ctx, update.ChatID, generationFailText)
		return nil
	}

	count, err := a.quota.RecordUsage(ctx, update.UserID)
	if err != nil {
		a.logger.Error("record usage", zap.Error(err), zap.Int64("user_id", update.UserID))
	}

	reply := "📖 <b>Твоя история</b>:\n\n" + story
	if decision == quota.DecisionGated {
		reply += "\n\n" + adBlock
	}
	if err := a.sender.SendHTML(ctx, update.ChatID, reply); err != nil {
		a.logger.Error("send story", zap.Error(err), zap.Int64("chat_id", update.ChatID))
	}

	a.sendShareKeyboard(ctx, update.ChatID, update.UserID)
	a.trackEvent(ctx, update.UserID, "story_generated", map[string]any{
		"gated":    decision == quota.DecisionGated,
		"requests": count,
	})

	return nil
}

func (a *App) isAdmin(userID int64) bool {
	return a.cfg.Bot.AdminID != 0 && userID == a.cfg.Bot.AdminID
}

func (a *App) referralLink(userID int64) string {
	if a.cfg.Bot.Username == "" {
		return ""
	}
	return "https://t.me/" + a.cfg.Bot.Username + "?start=" + referrals.Token(userID)
}

func (a *App) sendShareKeyboard(ctx context.Context, chatID, userID int64) {
	err := a.sender.SendShareKeyboard(ctx, chatID, shareMessage, a.referralLink(userID), a.cfg.Bot.ChannelLink)
	if err != nil {
		a.logger.Error("send share keyboard", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (a *App) sendText(ctx context.Context, chatID int64, text string) {
	if err := a.sender.SendText(ctx, chatID, text); err != nil {
		a.logger.Error("send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (a *App) trackEvent(ctx context.Context, userID int64, name string, props map[string]any) {
	if a.analytics == nil {
		return
	}
	if err := a.analytics.Track(ctx, userID, name, props); err != nil {
		a.logger.Warn("track event", zap.Error(err), zap.String("event", name))
	}
}

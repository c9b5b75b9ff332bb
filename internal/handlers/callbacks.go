package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"room-renovator-bot/internal/export"
	"room-renovator-bot/internal/renovation"
)

// Callback data layout: rv:<chatID>:<action>:<args...>. Short action
// codes and stage ordinals keep the payload inside Telegram's 64-byte
// callback data limit even with ULID entry IDs.
const callbackPrefix = "rv"

const (
	actionRegenerate = "rg"
	actionBundle     = "zip"
	actionTimelapse  = "tl"
)

func cb(chatID int64, parts ...string) string {
	return callbackPrefix + ":" + strconv.FormatInt(chatID, 10) + ":" + strings.Join(parts, ":")
}

func actionKeyboard(chatID int64, entryID string) tgbotapi.InlineKeyboardMarkup {
	var regenRow []tgbotapi.InlineKeyboardButton
	for _, stage := range renovation.GeneratedStages() {
		regenRow = append(regenRow, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("🔄 Stage %d", stage.Ordinal()),
			cb(chatID, actionRegenerate, entryID, strconv.Itoa(stage.Ordinal())),
		))
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		regenRow[:2],
		regenRow[2:],
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📦 Download ZIP", cb(chatID, actionBundle, entryID)),
			tgbotapi.NewInlineKeyboardButtonData("🎬 Timelapse prompts", cb(chatID, actionTimelapse, entryID)),
		),
	)
}

func bundleKeyboard(chatID int64, entryID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📦 Download ZIP", cb(chatID, actionBundle, entryID)),
		),
	)
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.Message == nil || q.Data == "" {
		return nil
	}

	parts := strings.Split(q.Data, ":")
	if len(parts) < 4 || parts[0] != callbackPrefix {
		return h.tg.AnswerCallback(q.ID, "", false)
	}

	ownerChatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return h.tg.AnswerCallback(q.ID, "", false)
	}

	chatID := q.Message.Chat.ID
	if ownerChatID != chatID {
		return h.tg.AnswerCallback(q.ID, "This menu belongs to another chat.", true)
	}

	action := parts[2]
	entryID := parts[3]

	switch action {
	case actionRegenerate:
		if len(parts) < 5 {
			return h.tg.AnswerCallback(q.ID, "", false)
		}
		return h.handleRegenerate(ctx, q, chatID, entryID, parts[4])
	case actionBundle:
		return h.handleBundle(q, chatID, entryID)
	case actionTimelapse:
		return h.handleTimelapse(q, chatID, entryID)
	default:
		return h.tg.AnswerCallback(q.ID, "", false)
	}
}

func (h *Handler) handleRegenerate(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64, entryID string, ordinalArg string) error {
	ordinal, err := strconv.Atoi(ordinalArg)
	if err != nil {
		return h.tg.AnswerCallback(q.ID, "", false)
	}
	stage, ok := renovation.StageByOrdinal(ordinal)
	if !ok {
		return h.tg.AnswerCallback(q.ID, "", false)
	}

	if err := h.tg.AnswerCallback(q.ID, "Regenerating "+stage.Label()+"…", false); err != nil {
		h.logger.Warn("answering callback failed", "err", err)
	}

	h.pipe.RegenerateStage(ctx, chatID, entryID, stage)
	return nil
}

func (h *Handler) handleBundle(q *tgbotapi.CallbackQuery, chatID int64, entryID string) error {
	entry, ok := h.transcripts.Get(chatID, entryID)
	if !ok || len(entry.Images) == 0 {
		return h.tg.AnswerCallback(q.ID, "Nothing to download for this renovation.", true)
	}

	if err := h.tg.AnswerCallback(q.ID, "Preparing your ZIP…", false); err != nil {
		h.logger.Warn("answering callback failed", "err", err)
	}

	data, err := export.BundleZip(entry)
	if err != nil {
		h.logger.Error("building zip bundle failed", "err", err)
		return h.tg.SendText(chatID, "❌ Couldn't assemble the download package. Please try again.")
	}

	caption := "📦 " + entry.Subject + " renovation package"
	if entry.Subject == "" {
		caption = "📦 Renovation package"
	}
	return h.tg.SendDocument(chatID, export.BundleName, data, caption)
}

func (h *Handler) handleTimelapse(q *tgbotapi.CallbackQuery, chatID int64, entryID string) error {
	if err := h.tg.AnswerCallback(q.ID, "Composing timelapse prompts…", false); err != nil {
		h.logger.Warn("answering callback failed", "err", err)
	}

	if _, err := h.pipe.ComposeTimelapse(chatID, entryID); err != nil {
		h.logger.Error("composing timelapse failed", "err", err)
		return h.tg.SendText(chatID, "❌ Couldn't compose timelapse prompts for that renovation.")
	}
	return nil
}

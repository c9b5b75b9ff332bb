package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"room-renovator-bot/internal/credential"
	"room-renovator-bot/internal/gemini"
	"room-renovator-bot/internal/mediagroup"
	"room-renovator-bot/internal/pipeline"
	"room-renovator-bot/internal/renovation"
	"room-renovator-bot/internal/telegram"
	"room-renovator-bot/internal/transcript"
)

const introText = "🏗️ Room Renovator AI\n\n" +
	"Hi! I'm the Room Renovator — ready to turn run-down spaces into dream rooms! ✨\n\n" +
	"Here's how it works:\n\n" +
	"1️⃣ Upload a photo of the room you want to renovate (ideally an empty or worn-out space)\n\n" +
	"2️⃣ I'll generate the four renovation stages:\n" +
	"   • Stage 1: Demolition\n" +
	"   • Stage 2: Wall prep\n" +
	"   • Stage 3: Flooring & paint\n" +
	"   • Stage 4: Final decor\n\n" +
	"3️⃣ Optionally, I'll compose timelapse video prompts for the full transformation\n\n" +
	"Send me a room photo and let's get started! 📸\n\n" +
	"Commands:\n" +
	"/start - Restart the bot\n" +
	"/help - Help\n" +
	"/apikey <key> - Save your Gemini API key\n" +
	"/clear - Clear the chat transcript"

type Options struct {
	Telegram    *telegram.Client
	Pipeline    *pipeline.Controller
	Transcripts *transcript.Store
	Keys        *credential.FileStore // nil when the deployment uses an ambient key
	Logger      *slog.Logger
}

type Handler struct {
	tg          *telegram.Client
	pipe        *pipeline.Controller
	transcripts *transcript.Store
	keys        *credential.FileStore
	logger      *slog.Logger
	aggregator  *mediagroup.Aggregator

	mu     sync.Mutex
	status map[string]int // transcript entry ID -> status message ID
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:          opts.Telegram,
		pipe:        opts.Pipeline,
		transcripts: opts.Transcripts,
		keys:        opts.Keys,
		logger:      logger,
		status:      make(map[string]int),
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		return h.handleCommand(chatID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, msg)
	}

	if msg.Text != "" {
		return h.tg.SendText(chatID, "📸 Send me a room photo to start a renovation. Use /help to see what I can do.")
	}

	return nil
}

// HandleMediaGroup ingests a flushed album: one run, first photo only.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if group.PhotoCount > 1 {
		_ = h.tg.SendText(group.ChatID, fmt.Sprintf("📸 You sent %d photos — I'll renovate the first one.", group.PhotoCount))
	}
	if err := h.ingestPhoto(ctx, group.ChatID, group.FirstFileID); err != nil {
		h.logger.Error("media group processing failed", "err", err)
	}
}

func (h *Handler) handleCommand(chatID int64, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return h.tg.SendText(chatID, introText)
	case "help":
		return h.tg.SendText(chatID,
			"🏗️ Help\n\n"+
				"Send a room photo — I'll generate the four renovation stages.\n"+
				"Use the buttons under a finished renovation to regenerate a stage, download everything as a ZIP, or get timelapse video prompts.\n"+
				"/apikey <key> — save your Gemini API key.\n"+
				"/clear — clear the chat transcript.",
		)
	case "clear":
		h.transcripts.Clear(chatID)
		return h.tg.SendText(chatID, "✅ Transcript cleared!")
	case "apikey":
		return h.handleAPIKey(chatID, strings.TrimSpace(msg.CommandArguments()))
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Try /help.")
	}
}

func (h *Handler) handleAPIKey(chatID int64, key string) error {
	if h.keys == nil {
		return h.tg.SendText(chatID, "🔑 This bot uses a preconfigured API key — you don't need to supply one.")
	}
	if key == "" {
		return h.tg.SendText(chatID, "❌ Usage: /apikey <your Gemini API key>")
	}
	if err := h.keys.SetChatKey(chatID, key); err != nil {
		h.logger.Error("saving API key failed", "err", err)
		return h.tg.SendText(chatID, "❌ Couldn't save the key. Please try again.")
	}
	return h.tg.SendText(chatID, "✅ API key saved for this chat! Now send a room photo. (You may want to delete your key message.)")
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       msg.From.ID,
			MediaGroupID: msg.MediaGroupID,
			FileID:       photo.FileID,
		})
		return nil
	}

	return h.ingestPhoto(ctx, chatID, photo.FileID)
}

func (h *Handler) ingestPhoto(ctx context.Context, chatID int64, fileID string) error {
	if h.pipe.State(chatID) != pipeline.RunIdle {
		return h.tg.SendText(chatID, "⏳ A renovation is already in progress for this chat. Please wait for it to finish.")
	}

	h.tg.SendTyping(chatID)

	base64Data, mimeType, err := h.tg.DownloadFileBase64(ctx, fileID)
	if err != nil {
		h.logger.Error("photo download failed", "err", err)
		return h.tg.SendText(chatID, "❌ I couldn't download that photo. Please try again.")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return h.tg.SendText(chatID, "❌ That doesn't look like an image. Please send a photo.")
	}

	h.pipe.SubmitImage(ctx, chatID, gemini.ImageInput{DataBase64: base64Data, MimeType: mimeType})
	return nil
}

// Notify renders pipeline events into the chat. It implements
// pipeline.Notifier.
func (h *Handler) Notify(event pipeline.Event) {
	chatID := event.ChatID
	entry := event.Entry

	switch event.Kind {
	case pipeline.EventUserUpload:
		// The user's upload is already visible in the chat.
	case pipeline.EventStatus:
		h.upsertStatus(chatID, entry.ID, entry.Text)
	case pipeline.EventRunFailed, pipeline.EventRegenFailed:
		h.finishStatus(chatID, entry.ID, entry.Text)
	case pipeline.EventRunCompleted:
		h.finishStatus(chatID, entry.ID, entry.Text)
		h.sendStagedImages(chatID, entry)
		h.sendActions(chatID, entry.ID)
	case pipeline.EventRegenCompleted:
		h.finishStatus(chatID, entry.ID, entry.Text)
		if img, ok := entry.ImageForStage(event.Stage); ok {
			h.sendStagedImage(chatID, img)
		}
		h.sendActions(chatID, entry.ID)
	case pipeline.EventTimelapse:
		h.sendTimelapse(chatID, entry)
	}
}

func (h *Handler) sendStagedImages(chatID int64, entry transcript.Entry) {
	for _, img := range entry.Images {
		if img.Stage == renovation.StageOriginal {
			continue
		}
		h.sendStagedImage(chatID, img)
	}
}

func (h *Handler) sendStagedImage(chatID int64, img transcript.StagedImage) {
	dataURL := gemini.ImageInput{DataBase64: img.DataBase64, MimeType: img.MimeType}.DataURL()
	if err := h.tg.SendPhotoDataURL(chatID, dataURL, img.Label); err != nil {
		h.logger.Error("sending staged image failed", "stage", string(img.Stage), "err", err)
	}
}

func (h *Handler) sendActions(chatID int64, entryID string) {
	_, err := h.tg.SendTextWithKeyboard(chatID,
		"Regenerate a stage, or grab the results:",
		actionKeyboard(chatID, entryID),
	)
	if err != nil {
		h.logger.Error("sending action keyboard failed", "err", err)
	}
}

func (h *Handler) sendTimelapse(chatID int64, entry transcript.Entry) {
	var b strings.Builder
	b.WriteString(entry.Text)
	b.WriteString("\n")
	for _, p := range entry.Prompts {
		b.WriteString("\n📍 ")
		b.WriteString(p.StageLabel)
		b.WriteString("\n")
		b.WriteString(p.Text)
		b.WriteString("\n")
	}

	if _, err := h.tg.SendTextWithKeyboard(chatID, b.String(), bundleKeyboard(chatID, entry.ID)); err != nil {
		h.logger.Error("sending timelapse prompts failed", "err", err)
	}
}

func (h *Handler) upsertStatus(chatID int64, entryID string, text string) {
	h.mu.Lock()
	msgID, ok := h.status[entryID]
	h.mu.Unlock()

	if ok {
		if err := h.tg.EditText(chatID, msgID, text); err == nil {
			return
		}
	}

	msgID, err := h.tg.SendMessage(chatID, text)
	if err != nil {
		h.logger.Error("sending status failed", "err", err)
		return
	}

	h.mu.Lock()
	h.status[entryID] = msgID
	h.mu.Unlock()
}

func (h *Handler) finishStatus(chatID int64, entryID string, text string) {
	h.mu.Lock()
	msgID, ok := h.status[entryID]
	delete(h.status, entryID)
	h.mu.Unlock()

	if ok {
		if err := h.tg.EditText(chatID, msgID, text); err == nil {
			return
		}
	}
	_ = h.tg.SendText(chatID, text)
}

// Package pipeline owns the renovation sequencing: one uploaded photo
// becomes an ordered set of staged images plus derived artifacts. All
// failures end up as transcript text; nothing escapes to callers.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"room-renovator-bot/internal/credential"
	"room-renovator-bot/internal/gemini"
	"room-renovator-bot/internal/renovation"
	"room-renovator-bot/internal/transcript"
)

// Generator is the image model collaborator. *gemini.Client satisfies
// it; tests substitute fakes.
type Generator interface {
	Classify(ctx context.Context, image gemini.ImageInput, instruction string) (string, error)
	EditImage(ctx context.Context, ref gemini.ImageInput, prompt string, aspectRatio string) (gemini.ImageInput, error)
}

// EventKind tells the chat surface how to render a transcript write.
type EventKind int

const (
	// EventUserUpload mirrors the user's own upload entry.
	EventUserUpload EventKind = iota
	// EventStatus is a pending entry's status text changing.
	EventStatus
	// EventRunCompleted carries the finished five-image entry.
	EventRunCompleted
	// EventRunFailed carries the failed, non-pending entry.
	EventRunFailed
	// EventRegenCompleted carries the entry after one stage was
	// replaced; Stage names the replaced stage.
	EventRegenCompleted
	// EventRegenFailed carries the entry after a failed regeneration;
	// the previous image is still in place.
	EventRegenFailed
	// EventTimelapse carries a new entry with structured prompts.
	EventTimelapse
)

// Event is one transcript write, in write order.
type Event struct {
	Kind   EventKind
	ChatID int64
	Entry  transcript.Entry
	Stage  renovation.Stage
}

// Notifier renders controller events to the chat surface.
type Notifier interface {
	Notify(event Event)
}

type NotifierFunc func(event Event)

func (f NotifierFunc) Notify(event Event) {
	f(event)
}

// RunState is the explicit per-chat run state machine. Illegal
// combinations (processing with no active run) are unrepresentable:
// a chat without an active run is RunIdle.
type RunState int

const (
	RunIdle RunState = iota
	RunClassifying
	RunGenerating
	RunDone
	RunFailed
)

func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunClassifying:
		return "classifying"
	case RunGenerating:
		return "generating"
	case RunDone:
		return "done"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// run is the ephemeral per-upload context. It lives for one
// classify-then-generate sequence and is discarded afterwards.
type run struct {
	state       RunState
	stage       renovation.Stage
	source      gemini.ImageInput
	aspectRatio string
	subject     string
	accumulated []transcript.StagedImage
}

type Options struct {
	Generator   Generator
	Transcripts *transcript.Store
	Credentials credential.Provider
	Notifier    Notifier
	Logger      *slog.Logger
}

type Controller struct {
	gen         Generator
	transcripts *transcript.Store
	creds       credential.Provider
	notifier    Notifier
	logger      *slog.Logger

	mu     sync.Mutex
	active map[int64]*run
}

func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(Event) {})
	}

	return &Controller{
		gen:         opts.Generator,
		transcripts: opts.Transcripts,
		creds:       opts.Credentials,
		notifier:    notifier,
		logger:      logger,
		active:      make(map[int64]*run),
	}
}

// State reports the chat's current run state.
func (c *Controller) State(chatID int64) RunState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.active[chatID]; ok {
		return r.state
	}
	return RunIdle
}

// SubmitImage runs the full pipeline for one uploaded photo: ingest,
// classify, generate the four stages in fixed order, finalize. It is
// a no-op while another run is active for the same chat. Errors never
// propagate; they surface as the pending entry's final text.
func (c *Controller) SubmitImage(ctx context.Context, chatID int64, image gemini.ImageInput) {
	r, started := c.beginRun(chatID, image)
	if !started {
		c.logger.Debug("upload rejected, run already active", "chat_id", chatID)
		return
	}
	defer c.endRun(chatID)

	ctx = credential.WithChat(ctx, chatID)
	if !c.creds.Has(ctx) {
		if err := c.creds.Request(ctx); err != nil {
			c.logger.Warn("credential request failed", "chat_id", chatID, "err", err)
		}
		return
	}

	raw, err := decodeImageData(image.DataBase64)
	if err == nil {
		var w, h int
		w, h, err = renovation.DecodeDimensions(raw)
		if err == nil {
			r.aspectRatio = renovation.ResolveAspectRatio(w, h)
		}
	}
	if err != nil {
		c.logger.Warn("image ingest failed", "chat_id", chatID, "err", err)
		entry := c.transcripts.Append(chatID, transcript.Entry{
			Author: transcript.AuthorAssistant,
			Text:   "❌ I couldn't read that image. Please send a regular photo (JPEG or PNG).",
		})
		c.notifier.Notify(Event{Kind: EventRunFailed, ChatID: chatID, Entry: entry})
		return
	}

	original := transcript.StagedImage{
		DataBase64: image.DataBase64,
		MimeType:   image.MimeType,
		Stage:      renovation.StageOriginal,
		Label:      renovation.StageOriginal.Label(),
	}
	r.accumulated = []transcript.StagedImage{original}

	userEntry := c.transcripts.Append(chatID, transcript.Entry{
		Author: transcript.AuthorUser,
		Images: []transcript.StagedImage{original},
	})
	c.notifier.Notify(Event{Kind: EventUserUpload, ChatID: chatID, Entry: userEntry})

	pending := c.transcripts.Append(chatID, transcript.Entry{
		Author:      transcript.AuthorAssistant,
		Text:        "🔎 Analyzing your room photo...",
		AspectRatio: r.aspectRatio,
		Pending:     true,
	})
	c.notifier.Notify(Event{Kind: EventStatus, ChatID: chatID, Entry: pending})

	c.setState(r, RunClassifying, "")
	r.subject = renovation.DefaultSubject
	label, err := c.gen.Classify(ctx, image, renovation.ClassifyInstruction)
	if err != nil {
		c.logger.Warn("classification failed, using default subject", "chat_id", chatID, "err", err)
	} else {
		r.subject = renovation.CleanSubject(label)
	}

	c.setState(r, RunGenerating, "")
	for _, stage := range renovation.GeneratedStages() {
		c.setState(r, RunGenerating, stage)
		c.updateAndNotify(chatID, pending.ID, EventStatus, stage, func(e *transcript.Entry) {
			e.Text = fmt.Sprintf("🏗️ Renovating %s: %s...", r.subject, stage.Label())
		})

		img, err := c.gen.EditImage(ctx, image, renovation.StagePrompt(stage, r.subject), r.aspectRatio)
		if err != nil {
			c.logger.Error("stage generation failed", "chat_id", chatID, "stage", string(stage), "err", err)
			c.setState(r, RunFailed, stage)
			// Abort policy: partial results are discarded so the entry
			// never shows fewer stages than promised.
			c.updateAndNotify(chatID, pending.ID, EventRunFailed, stage, func(e *transcript.Entry) {
				e.Text = failureText(stage, err)
				e.Images = nil
				e.Pending = false
			})
			return
		}

		r.accumulated = append(r.accumulated, transcript.StagedImage{
			DataBase64: img.DataBase64,
			MimeType:   img.MimeType,
			Stage:      stage,
			Label:      stage.Label(),
		})
	}

	c.setState(r, RunDone, "")
	images := r.accumulated
	subject := r.subject
	ratio := r.aspectRatio
	c.updateAndNotify(chatID, pending.ID, EventRunCompleted, "", func(e *transcript.Entry) {
		e.Text = fmt.Sprintf("✨ Here is your %s transformation (aspect %s)! Browse the stages below, and regenerate any stage you are not happy with.", subject, ratio)
		e.Images = images
		e.Subject = subject
		e.Pending = false
	})
}

// RegenerateStage re-renders a single stage of an existing entry from
// its stored original, replacing the stage's image in place. Other
// stages stay untouched; on failure the previous image is kept. The
// guard is per entry, so different entries may regenerate
// concurrently.
func (c *Controller) RegenerateStage(ctx context.Context, chatID int64, entryID string, stage renovation.Stage) {
	if stage == renovation.StageOriginal || !stage.Valid() {
		return
	}

	var (
		started bool
		source  transcript.StagedImage
		subject string
	)
	entry, found := c.transcripts.Update(chatID, entryID, func(e *transcript.Entry) {
		if e.Pending {
			return
		}
		orig, ok := e.ImageForStage(renovation.StageOriginal)
		if !ok {
			return
		}
		if _, ok := e.ImageForStage(stage); !ok {
			return
		}
		source = orig
		subject = e.Subject
		started = true
		e.Pending = true
		e.Text = fmt.Sprintf("🔄 Regenerating %s...", stage.Label())
	})
	if !found || !started {
		c.logger.Debug("regeneration rejected", "chat_id", chatID, "entry_id", entryID, "stage", string(stage))
		return
	}
	c.notifier.Notify(Event{Kind: EventStatus, ChatID: chatID, Entry: entry, Stage: stage})

	if subject == "" {
		subject = renovation.DefaultSubject
	}

	ctx = credential.WithChat(ctx, chatID)
	if !c.creds.Has(ctx) {
		if err := c.creds.Request(ctx); err != nil {
			c.logger.Warn("credential request failed", "chat_id", chatID, "err", err)
		}
		c.updateAndNotify(chatID, entryID, EventRegenFailed, stage, func(e *transcript.Entry) {
			e.Text = "🔑 An API key is needed before I can regenerate. The previous image is kept."
			e.Pending = false
		})
		return
	}

	// The aspect ratio is recomputed from the stored original; it is
	// not carried over from the run that produced the entry.
	aspectRatio := ""
	if raw, err := decodeImageData(source.DataBase64); err == nil {
		if w, h, err := renovation.DecodeDimensions(raw); err == nil {
			aspectRatio = renovation.ResolveAspectRatio(w, h)
		}
	}

	ref := gemini.ImageInput{DataBase64: source.DataBase64, MimeType: source.MimeType}
	img, err := c.gen.EditImage(ctx, ref, renovation.RegenPrompt(stage, subject), aspectRatio)
	if err != nil {
		c.logger.Error("regeneration failed", "chat_id", chatID, "entry_id", entryID, "stage", string(stage), "err", err)
		c.updateAndNotify(chatID, entryID, EventRegenFailed, stage, func(e *transcript.Entry) {
			e.Text = regenFailureText(stage, err)
			e.Pending = false
		})
		return
	}

	c.updateAndNotify(chatID, entryID, EventRegenCompleted, stage, func(e *transcript.Entry) {
		for i := range e.Images {
			if e.Images[i].Stage == stage {
				e.Images[i].DataBase64 = img.DataBase64
				e.Images[i].MimeType = img.MimeType
				break
			}
		}
		e.Text = fmt.Sprintf("✅ %s regenerated!", stage.Label())
		e.Pending = false
	})
}

// ComposeTimelapse appends a new assistant entry carrying the four
// timelapse video prompts plus the source entry's image set. Artifact
// data stays scoped to the entry it came from.
func (c *Controller) ComposeTimelapse(chatID int64, entryID string) (transcript.Entry, error) {
	source, ok := c.transcripts.Get(chatID, entryID)
	if !ok {
		return transcript.Entry{}, fmt.Errorf("entry %s not found", entryID)
	}
	if len(source.Images) == 0 {
		return transcript.Entry{}, fmt.Errorf("entry %s has no images", entryID)
	}

	subject := source.Subject
	if subject == "" {
		subject = renovation.DefaultSubject
	}

	entry := c.transcripts.Append(chatID, transcript.Entry{
		Author:      transcript.AuthorAssistant,
		Text:        fmt.Sprintf("🎬 Here are the four timelapse video prompts for your %s transformation. Copy them into your video tool of choice!", subject),
		Prompts:     renovation.TimelapsePrompts(subject),
		Images:      source.Images,
		Subject:     subject,
		AspectRatio: source.AspectRatio,
	})
	c.notifier.Notify(Event{Kind: EventTimelapse, ChatID: chatID, Entry: entry})
	return entry, nil
}

func (c *Controller) beginRun(chatID int64, image gemini.ImageInput) (*run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[chatID]; ok {
		return nil, false
	}
	r := &run{state: RunClassifying, source: image}
	c.active[chatID] = r
	return r, true
}

func (c *Controller) endRun(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, chatID)
}

func (c *Controller) setState(r *run, state RunState, stage renovation.Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.state = state
	r.stage = stage
}

func (c *Controller) updateAndNotify(chatID int64, entryID string, kind EventKind, stage renovation.Stage, fn func(*transcript.Entry)) {
	entry, ok := c.transcripts.Update(chatID, entryID, fn)
	if !ok {
		return
	}
	c.notifier.Notify(Event{Kind: kind, ChatID: chatID, Entry: entry, Stage: stage})
}

func failureText(stage renovation.Stage, err error) string {
	switch {
	case gemini.IsQuotaExhausted(err):
		return fmt.Sprintf("❌ The generation quota is exhausted (stopped at %s). Please try again later.", stage.Label())
	case gemini.IsPermissionDenied(err):
		return fmt.Sprintf("❌ The API key was rejected while generating %s. Check that it has access to image generation and an active billing tier.", stage.Label())
	default:
		return fmt.Sprintf("❌ Something went wrong while generating %s. Please send the photo again.", stage.Label())
	}
}

func regenFailureText(stage renovation.Stage, err error) string {
	switch {
	case gemini.IsQuotaExhausted(err):
		return fmt.Sprintf("❌ The generation quota is exhausted, so %s was not regenerated. The previous image is kept.", stage.Label())
	case gemini.IsPermissionDenied(err):
		return fmt.Sprintf("❌ The API key was rejected, so %s was not regenerated. The previous image is kept.", stage.Label())
	default:
		return fmt.Sprintf("❌ Regenerating %s failed. The previous image is kept — try again.", stage.Label())
	}
}

func decodeImageData(dataBase64 string) ([]byte, error) {
	if idx := strings.IndexByte(dataBase64, ','); idx >= 0 {
		dataBase64 = dataBase64[idx+1:]
	}
	return base64.StdEncoding.DecodeString(dataBase64)
}

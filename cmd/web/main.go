package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"room-renovator-bot/internal/credential"
	"room-renovator-bot/internal/export"
	"room-renovator-bot/internal/gemini"
	"room-renovator-bot/internal/httpclient"
	"room-renovator-bot/internal/pipeline"
	"room-renovator-bot/internal/renovation"
	"room-renovator-bot/internal/transcript"
)

type server struct {
	ctrl        *pipeline.Controller
	transcripts *transcript.Store

	// Each request gets its own transcript chat, so concurrent uploads
	// never share run state.
	nextChatID atomic.Int64
}

type apiError struct {
	Error string `json:"error"`
}

type stagedImageResponse struct {
	Stage   string `json:"stage"`
	Label   string `json:"label"`
	DataURL string `json:"data_url"`
}

type promptResponse struct {
	StageLabel string `json:"stage_label"`
	Text       string `json:"text"`
}

type renovateResponse struct {
	Subject     string                `json:"subject"`
	AspectRatio string                `json:"aspect_ratio"`
	Images      []stagedImageResponse `json:"images"`
	Prompts     []promptResponse      `json:"prompts,omitempty"`
}

func main() {
	_ = godotenv.Load()

	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		panic("GEMINI_API_KEY is required")
	}

	addr := strings.TrimSpace(getEnv("WEB_ADDR", ":8080"))

	httpTimeout := time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second
	if httpTimeout <= 0 {
		httpTimeout = 180 * time.Second
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: getEnvBool("PREFER_IPV4", true),
		Timeout:    httpTimeout,
	})

	creds := credential.NewStatic(apiKey)

	gem := gemini.New(gemini.Options{
		Credentials: creds,
		BaseURL:     strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		APIVersion:  strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		HTTPClient:  httpClient,
		Logger:      logger,
	})

	transcripts := transcript.NewStore(transcript.Options{})

	ctrl := pipeline.New(pipeline.Options{
		Generator:   gem,
		Transcripts: transcripts,
		Credentials: creds,
		Logger:      logger,
	})

	s := &server{ctrl: ctrl, transcripts: transcripts}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/renovate", s.handleRenovate)

	srv := &http.Server{
		Addr:              addr,
		Handler:           withLogging(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	logger.Info("web started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

func (s *server) handleRenovate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	const maxUploadBytes = 25 << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image"})
		return
	}
	defer file.Close()

	imgBytes, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read image"})
		return
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(imgBytes)
	}
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	if !strings.HasPrefix(mimeType, "image/") {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "not an image"})
		return
	}

	timeout := time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 300)) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	// The request's throwaway chat holds five base64 images; drop it
	// once the response is written or the store grows without bound.
	chatID := s.nextChatID.Add(1)
	defer s.transcripts.Delete(chatID)

	s.ctrl.SubmitImage(ctx, chatID, gemini.ImageInput{
		DataBase64: base64.StdEncoding.EncodeToString(imgBytes),
		MimeType:   mimeType,
	})

	entry, ok := lastAssistantEntry(s.transcripts.Entries(chatID))
	if !ok {
		writeJSON(w, http.StatusBadGateway, apiError{Error: "renovation produced no result"})
		return
	}
	if len(entry.Images) == 0 {
		writeJSON(w, http.StatusBadGateway, apiError{Error: entry.Text})
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.FormValue("format")))

	if format == "png" {
		img, ok := entry.ImageForStage(renovation.StageFinalDecor)
		if !ok {
			writeJSON(w, http.StatusBadGateway, apiError{Error: "no final decor image"})
			return
		}
		data, err := base64.StdEncoding.DecodeString(img.DataBase64)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
			return
		}
		w.Header().Set("content-type", img.MimeType)
		w.Header().Set("content-disposition", `attachment; filename="`+export.SingleFilename(img.Label)+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	if format == "zip" {
		withPrompts, err := s.ctrl.ComposeTimelapse(chatID, entry.ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
			return
		}
		data, err := export.BundleZip(withPrompts)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
			return
		}
		w.Header().Set("content-type", "application/zip")
		w.Header().Set("content-disposition", `attachment; filename="`+export.BundleName+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	resp := renovateResponse{
		Subject:     entry.Subject,
		AspectRatio: entry.AspectRatio,
	}
	for _, img := range entry.Images {
		resp.Images = append(resp.Images, stagedImageResponse{
			Stage:   string(img.Stage),
			Label:   img.Label,
			DataURL: gemini.ImageInput{DataBase64: img.DataBase64, MimeType: img.MimeType}.DataURL(),
		})
	}
	for _, p := range entry.Prompts {
		resp.Prompts = append(resp.Prompts, promptResponse{StageLabel: p.StageLabel, Text: p.Text})
	}

	writeJSON(w, http.StatusOK, resp)
}

func lastAssistantEntry(entries []transcript.Entry) (transcript.Entry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Author == transcript.AuthorAssistant {
			return entries[i], true
		}
	}
	return transcript.Entry{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}

package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier posts through the Telegram Bot API. One notifier can
// fan a message out to several chat ids.
type TelegramNotifier struct {
	token   string
	chatIDs []int64
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewTelegramNotifier creates the notifier. chatIDsCSV is a comma
// separated id list; malformed entries are skipped with a warning.
func NewTelegramNotifier(token, chatIDsCSV string, log zerolog.Logger) *TelegramNotifier {
	l := log.With().Str("component", "telegram").Logger()
	return &TelegramNotifier{
		token:   token,
		chatIDs: ParseChatIDs(chatIDsCSV, l),
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: telegramAPIBase,
		log:     l,
	}
}

// ParseChatIDs splits a comma separated chat id list, dropping blanks
// and non-numeric tokens.
func ParseChatIDs(csv string, log zerolog.Logger) []int64 {
	var ids []int64
	for _, raw := range strings.Split(csv, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			log.Warn().Str("chat_id", token).Msg("skipping invalid chat id")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Name implements Notifier.
func (t *TelegramNotifier) Name() string { return "telegram" }

// Enabled reports whether the notifier has a token and at least one
// chat to talk to.
func (t *TelegramNotifier) Enabled() bool {
	return t.token != "" && len(t.chatIDs) > 0
}

// SendText sends an HTML message to every configured chat.
func (t *TelegramNotifier) SendText(ctx context.Context, text string) error {
	var lastErr error
	for _, chatID := range t.chatIDs {
		if err := t.sendMessage(ctx, chatID, text); err != nil {
			t.log.Warn().Err(err).Int64("chat_id", chatID).Msg("sendMessage failed")
			lastErr = err
		}
	}
	return lastErr
}

// SendPhoto uploads the photo with an HTML caption to every chat.
func (t *TelegramNotifier) SendPhoto(ctx context.Context, photoPath, caption string) error {
	var lastErr error
	for _, chatID := range t.chatIDs {
		if err := t.sendPhoto(ctx, chatID, photoPath, caption); err != nil {
			t.log.Warn().Err(err).Int64("chat_id", chatID).Msg("sendPhoto failed")
			lastErr = err
		}
	}
	return lastErr
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return t.do(req)
}

func (t *TelegramNotifier) sendPhoto(ctx context.Context, chatID int64, photoPath, caption string) error {
	file, err := os.Open(photoPath)
	if err != nil {
		return fmt.Errorf("open photo %s: %w", photoPath, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	if err := w.WriteField("caption", caption); err != nil {
		return fmt.Errorf("write caption field: %w", err)
	}
	if err := w.WriteField("parse_mode", "HTML"); err != nil {
		return fmt.Errorf("write parse_mode field: %w", err)
	}
	part, err := w.CreateFormFile("photo", filepath.Base(photoPath))
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy photo data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("build sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return t.do(req)
}

func (t *TelegramNotifier) do(req *http.Request) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

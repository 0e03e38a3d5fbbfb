// Package slack implements a Slack Events API handler mounted on the
// main HTTP gateway.
//
// Security:
//   - Requests verified via HMAC-SHA256 signature when a signing secret
//     is configured
//   - Replay protection: rejects requests with timestamps older than 5 minutes
//   - Bot messages are ignored so the service never answers itself
package slack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Samad191/agent/internal/ratelimit"
)

const (
	maxRequestSize  = 256 << 10 // 256 KB, Slack payloads are small
	signatureMaxAge = 5 * time.Minute
	replyTimeout    = 90 * time.Second

	defaultAPIBaseURL = "https://slack.com/api"
)

// Responder produces a reply for an incoming message. The thread ID keys
// the conversation history.
type Responder interface {
	Answer(ctx context.Context, threadID, question string) (string, string, error)
}

// Config configures the Slack events handler.
type Config struct {
	SigningSecret string // HMAC signing secret. Empty = verification skipped.
	BotToken      string // Bot token xoxb-... used for chat.postMessage.
}

// Handler serves POST /slack/events.
type Handler struct {
	config     Config
	responder  Responder
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	httpClient *http.Client
	apiBaseURL string
}

// Option configures a Handler.
type Option func(*Handler)

// WithHTTPClient sets a custom HTTP client for Slack API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Handler) {
		h.httpClient = client
	}
}

// WithAPIBaseURL overrides the Slack API base URL.
func WithAPIBaseURL(url string) Option {
	return func(h *Handler) {
		h.apiBaseURL = url
	}
}

// NewHandler creates a Slack events handler.
func NewHandler(cfg Config, responder Responder, rl *ratelimit.Limiter, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		config:    cfg,
		responder: responder,
		limiter:   rl,
		logger:    logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiBaseURL: defaultAPIBaseURL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// eventEnvelope is the outer payload of an Events API request.
type eventEnvelope struct {
	Type      string       `json:"type"`
	Challenge string       `json:"challenge,omitempty"`
	Event     messageEvent `json:"event,omitempty"`
}

type messageEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	User    string `json:"user"`
	Channel string `json:"channel"`
	BotID   string `json:"bot_id,omitempty"`
}

// ServeHTTP handles Events API callbacks. Message events are acknowledged
// immediately; the reply is produced and posted asynchronously.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.readAndVerify(r)
	if err != nil {
		h.logger.Warn("slack signature verification failed", slog.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": envelope.Challenge})
		return
	case "event_callback":
		h.handleEvent(w, r, envelope.Event)
		return
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request, event messageEvent) {
	// Ignore our own (and any other bot's) messages.
	if event.BotID != "" || event.Type != "message" || event.Text == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.limiter != nil {
		if err := h.limiter.Allow(event.User); err != nil {
			h.logger.Warn("slack user rate limited", slog.String("slack_user_id", event.User))
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	correlationID := newCorrelationID()

	h.logger.Info("slack message received",
		slog.String("slack_user_id", event.User),
		slog.String("channel", event.Channel),
		slog.String("correlation_id", correlationID),
	)

	// Ack within Slack's 3-second deadline, reply asynchronously.
	w.WriteHeader(http.StatusOK)

	go h.reply(event, correlationID)
}

// reply produces the answer and posts it back to the channel. Runs
// detached from the request, errors are logged, never surfaced to Slack.
func (h *Handler) reply(event messageEvent, correlationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	// One conversation thread per channel.
	threadID := uuid.NewSHA1(uuid.NameSpaceDNS, []byte("slack:"+event.Channel)).String()

	text, _, err := h.responder.Answer(ctx, threadID, event.Text)
	if err != nil {
		h.logger.Error("slack reply failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := h.postMessage(ctx, event.Channel, text); err != nil {
		h.logger.Error("posting slack message failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// postMessage sends text to a channel via chat.postMessage.
func (h *Handler) postMessage(ctx context.Context, channel, text string) error {
	payload, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiBaseURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.config.BotToken)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack api returned status %d", resp.StatusCode)
	}
	return nil
}

// readAndVerify reads the request body and verifies the Slack HMAC-SHA256
// signature. Verification is skipped when no signing secret is configured.
func (h *Handler) readAndVerify(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	defer r.Body.Close()

	if h.config.SigningSecret == "" {
		return body, nil
	}

	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	signature := r.Header.Get("X-Slack-Signature")
	if timestamp == "" || signature == "" {
		return nil, fmt.Errorf("missing signature headers")
	}

	// Replay protection: reject requests older than 5 minutes.
	ts, err := parseUnixTimestamp(timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	if time.Since(ts) > signatureMaxAge {
		return nil, fmt.Errorf("request too old (%v ago)", time.Since(ts))
	}

	// Expected signature: v0=hmac_sha256(secret, "v0:{timestamp}:{body}")
	baseString := fmt.Sprintf("v0:%s:%s", timestamp, string(body))
	mac := hmac.New(sha256.New, []byte(h.config.SigningSecret))
	mac.Write([]byte(baseString))
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, fmt.Errorf("signature mismatch")
	}

	return body, nil
}

func parseUnixTimestamp(s string) (time.Time, error) {
	var ts int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return time.Time{}, fmt.Errorf("non-numeric timestamp: %q", s)
		}
		ts = ts*10 + int64(c-'0')
		if ts > math.MaxInt64/10 {
			return time.Time{}, fmt.Errorf("timestamp overflow: %q", s)
		}
	}
	return time.Unix(ts, 0), nil
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultWebhookTimeout bounds a single webhook POST.
	DefaultWebhookTimeout = 5 * time.Second

	webhookUsername  = "Gumboard"
	webhookIconEmoji = ":clipboard:"
)

// Message is the body posted to an incoming webhook.
type Message struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
}

// Sender posts a message to a webhook and returns a reference to it. ok is
// false when the message was not delivered.
type Sender interface {
	Send(ctx context.Context, webhookURL, text string) (ref string, ok bool)
}

// WebhookClient posts messages to Slack-compatible incoming webhooks. It never
// retries.
type WebhookClient struct {
	client *http.Client
	logger *log.Logger
}

func NewWebhookClient(timeout time.Duration, logger *log.Logger) *WebhookClient {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &WebhookClient{client: &http.Client{Timeout: timeout}, logger: logger}
}

// Send posts text to webhookURL. Failures are logged and reported as !ok.
func (c *WebhookClient) Send(ctx context.Context, webhookURL, text string) (string, bool) {
	body, err := sonic.Marshal(Message{Text: text, Username: webhookUsername, IconEmoji: webhookIconEmoji})
	if err != nil {
		c.logger.WithError(err).Error("encode webhook message")
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		c.logger.WithError(err).Warn("build webhook request")
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("webhook post failed")
		return "", false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithError(fmt.Errorf("unexpected status %d", resp.StatusCode)).Warn("webhook post rejected")
		return "", false
	}
	return strconv.FormatInt(nextMessageRef(), 10), true
}

var lastMessageRef int64

// nextMessageRef returns the current Unix time in milliseconds, bumped past
// the previous reference so that refs stay unique within the process.
func nextMessageRef() int64 {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&lastMessageRef)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastMessageRef, last, now) {
			return now
		}
	}
}

package notify

import (
	"context"
	"net/url"
	"time"

	"gumboard-api/domain"

	log "github.com/sirupsen/logrus"
)

// Enqueuer accepts messages for asynchronous delivery.
type Enqueuer interface {
	Enqueue(webhookURL, text string, fields log.Fields, delivered func(ref string)) bool
}

// Notifier runs eligible events through the debounce gate and the deduper,
// formats the survivors and hands them to the dispatcher. It implements
// domain.Notifier.
type Notifier struct {
	gate       *Gate
	dedup      Deduper
	dispatcher Enqueuer
	logger     *log.Logger
	baseURL    string
	now        func() time.Time
}

// NewNotifier wires the pipeline. baseURL, when set, switches messages to
// the board-link format.
func NewNotifier(gate *Gate, dedup Deduper, dispatcher Enqueuer, logger *log.Logger, baseURL string) *Notifier {
	if gate == nil || dedup == nil || dispatcher == nil {
		panic("notify.NewNotifier: missing dependency")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Notifier{
		gate:       gate,
		dedup:      dedup,
		dispatcher: dispatcher,
		logger:     logger,
		baseURL:    baseURL,
		now:        time.Now,
	}
}

// NotifyChecklist sends at most one message per event that survives both
// gates. The caller is never blocked on the network.
func (n *Notifier) NotifyChecklist(ctx context.Context, nt domain.Notification) {
	webhook, ok := n.webhookURL(nt)
	if !ok {
		return
	}
	for _, ev := range nt.Events {
		n.send(ctx, nt, webhook, ev.ItemID, ev.Action, ev.Content, nil)
	}
}

// NotifyNoteAdded reports a new plain note. delivered receives the message
// reference once the webhook accepted it.
func (n *Notifier) NotifyNoteAdded(ctx context.Context, nt domain.Notification, delivered func(ref string)) {
	if !domain.HasValidContent(nt.Note.Content) {
		return
	}
	webhook, ok := n.webhookURL(nt)
	if !ok {
		return
	}
	n.send(ctx, nt, webhook, nt.Note.ID, domain.ActionAdded, nt.Note.Content, delivered)
}

func (n *Notifier) send(ctx context.Context, nt domain.Notification, webhook, entityID string, action domain.Action, content string, delivered func(string)) {
	fields := log.Fields{
		"board":  nt.Board.ID,
		"note":   nt.Note.ID,
		"entity": entityID,
		"action": string(action),
		"actor":  nt.Actor.ID,
	}
	now := n.now()

	if !n.gate.Allow(nt.Actor.ID, nt.Board, now) {
		n.logger.WithFields(fields).Debug("notification debounced")
		return
	}
	if !n.dedup.ShouldSend(ctx, entityID, action, content, now) {
		n.logger.WithFields(fields).Debug("notification deduplicated")
		return
	}

	text := FormatWithBoardLink(content, action, nt.Actor.DisplayName(), nt.Board.Name, BoardURL(n.baseURL, nt.Board.ID))
	if !n.dispatcher.Enqueue(webhook, text, fields, delivered) {
		n.logger.WithFields(fields).Warn("notification queue full, dropping")
	}
}

func (n *Notifier) webhookURL(nt domain.Notification) (string, bool) {
	raw := nt.Organization.SlackWebhookURL
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		n.logger.WithField("organization", nt.Organization.ID).Warn("invalid webhook url, skipping notification")
		return "", false
	}
	return raw, true
}

package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gumboard-api/domain"
)

const (
	tracerName             = "gumboard-api/api"
	observabilityEventName = "observability.event"
	apiEventDomain         = "gumboard.api"
	checklistAttrPrefix    = "gumboard.checklist."
)

// requestOp names the span and event of one route.
type requestOp struct {
	route string
	span  string
	event string
}

var (
	opUpdateNote = requestOp{
		route: "/api/boards/:boardId/notes/:noteId",
		span:  "gumboard.api.checklist.update",
		event: "gumboard.checklist.update",
	}
	opCreateNote = requestOp{
		route: "/api/boards/:boardId/notes",
		span:  "gumboard.api.note.create",
		event: "gumboard.note.create",
	}
	opSplitItem = requestOp{
		route: "/api/boards/:boardId/notes/:noteId/checklist/:itemId/split",
		span:  "gumboard.api.checklist.split",
		event: "gumboard.checklist.split",
	}
	opTaskCommand = requestOp{
		route: "/api/boards/:boardId/notes/:noteId/tasks",
		span:  "gumboard.api.checklist.task",
		event: "gumboard.checklist.task",
	}
)

type requestMetrics struct {
	logger          *log.Logger
	op              requestOp
	span            trace.Span
	start           time.Time
	authDuration    time.Duration
	decodeDuration  time.Duration
	serviceDuration time.Duration
	encodeDuration  time.Duration
	created         int
	updated         int
	deleted         int
	events          int
	items           int
	errorStage      string
	cause           error
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, op requestOp) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, op.span, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		op:     op,
		span:   span,
		start:  time.Now(),
	}, ctx
}

func (m *requestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *requestMetrics) ObserveDecode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.decodeDuration = duration
}

func (m *requestMetrics) ObserveService(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.serviceDuration = duration
}

func (m *requestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

// SetChanges records the size of the change set and how many notification
// events it made eligible.
func (m *requestMetrics) SetChanges(cs domain.ChangeSet) {
	m.created = len(cs.Created)
	m.updated = len(cs.Updated)
	m.deleted = len(cs.Deleted)
	m.events = len(cs.Events())
}

func (m *requestMetrics) SetItems(count int) {
	if count < 0 {
		count = 0
	}
	m.items = count
}

// Fail marks the stage that rejected the request. cause is reported when the
// handler itself returns no error.
func (m *requestMetrics) Fail(stage string, cause error) {
	if stage != "" {
		m.errorStage = stage
	}
	if cause != nil {
		m.cause = cause
	}
}

func (m *requestMetrics) attributes(status int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.op.route),
		attribute.Int("http.status_code", status),
		attribute.Float64(checklistAttrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int(checklistAttrPrefix+"created", m.created),
		attribute.Int(checklistAttrPrefix+"updated", m.updated),
		attribute.Int(checklistAttrPrefix+"deleted", m.deleted),
		attribute.Int(checklistAttrPrefix+"events", m.events),
		attribute.Int(checklistAttrPrefix+"items", m.items),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(checklistAttrPrefix+"auth_ms", durationToMillis(m.authDuration)))
	}
	if m.decodeDuration > 0 {
		attrs = append(attrs, attribute.Float64(checklistAttrPrefix+"decode_ms", durationToMillis(m.decodeDuration)))
	}
	if m.serviceDuration > 0 {
		attrs = append(attrs, attribute.Float64(checklistAttrPrefix+"service_ms", durationToMillis(m.serviceDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64(checklistAttrPrefix+"encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(checklistAttrPrefix+"error_stage", m.errorStage))
	}
	return attrs
}

// Log ends the request span and emits one observability.event log entry.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.cause
	}

	attrs := m.attributes(status)
	severityText, severityNumber := severityForStatus(status, err)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", m.op.event),
		attribute.String("event.domain", apiEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent(observabilityEventName, trace.WithAttributes(eventAttrs...))
		switch {
		case status >= http.StatusInternalServerError:
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		case status >= http.StatusBadRequest:
		case err != nil:
			m.span.SetStatus(codes.Error, err.Error())
		default:
			m.span.SetStatus(codes.Ok, "")
		}
	}

	if m.logger != nil {
		fields := log.Fields{
			"event.name":      m.op.event,
			"event.domain":    apiEventDomain,
			"attributes":      attributesMap(attrs),
			"severity_text":   severityText,
			"severity_number": severityNumber,
		}
		if m.span != nil {
			if sc := m.span.SpanContext(); sc.IsValid() {
				fields["trace_id"] = sc.TraceID().String()
				fields["span_id"] = sc.SpanID().String()
			}
		}
		entry := m.logger.WithFields(fields)
		if err != nil {
			entry = entry.WithError(err)
		}
		switch severityText {
		case "ERROR":
			entry.Error(observabilityEventName)
		case "WARN":
			entry.Warn(observabilityEventName)
		default:
			entry.Info(observabilityEventName)
		}
	}

	if m.span != nil {
		m.span.End()
	}
}

// severityForStatus maps an HTTP outcome to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func attributesMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

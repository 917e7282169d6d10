package contact

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/clubdesk-web/internal/httpmw"
	"github.com/keithlinneman/clubdesk-web/internal/log"
	"github.com/keithlinneman/clubdesk-web/internal/otelx"
	"github.com/keithlinneman/clubdesk-web/internal/ratelimit"
	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

const (
	Route = "/api/contact"

	MaxBodyBytes = 16 << 10

	DefaultDeliveryTimeout = 15 * time.Second
)

// Submission outcomes, used as the metric label
const (
	OutcomeAccepted        = "accepted"
	OutcomeSpam            = "spam"
	OutcomeInvalid         = "invalid"
	OutcomeMalformed       = "malformed"
	OutcomeTooLarge        = "too_large"
	OutcomeUnsupportedType = "unsupported_media_type"
	OutcomeDeliveryFailed  = "delivery_failed"
)

// Metrics is implemented by the metrics package
type Metrics interface {
	IncContactSubmission(outcome string)
}

type Options struct {
	Logger log.Logger
	// Limiter guards the route, required. One instance is shared for the whole process.
	Limiter   *ratelimit.Limiter
	Notifiers []Notifier
	Locales   LocaleSet
	Metrics   Metrics
	// DeliveryTimeout bounds all notifiers together
	DeliveryTimeout time.Duration

	// test hooks
	Now   func() time.Time
	NewID func() string
}

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	if opts.Limiter == nil {
		return nil, xerrors.New("contact: Limiter is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = newSubmissionID
	}
	return &Handler{opts: opts}, nil
}

// RegisterRoutes mounts POST /api/contact behind the rate limiter and a body limit
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.opts.Limiter.Middleware, httpmw.MaxBody(MaxBodyBytes)).Post(Route, h.ServeHTTP)
}

// Handler returns the route as a plain handler, limiter included
func (h *Handler) Handler() http.Handler {
	return httpmw.Chain(h, h.opts.Limiter.Middleware, httpmw.MaxBody(MaxBodyBytes))
}

type acceptedBody struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ServeHTTP handles an already rate-limited request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContext(ctx)

	if !isJSON(r.Header.Get("Content-Type")) {
		h.observe(OutcomeUnsupportedType)
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody{Error: "content type must be application/json"})
		return
	}

	var in request
	if err := decodeJSON(r.Body, &in); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.observe(OutcomeTooLarge)
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return
		}
		h.observe(OutcomeMalformed)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	in.normalize()

	// bots get the same answer as people so they have nothing to tune against
	if in.Website != "" {
		h.observe(OutcomeSpam)
		L.Info(ctx, "contact honeypot triggered")
		writeJSON(w, http.StatusAccepted, acceptedBody{OK: true, ID: h.opts.NewID()})
		return
	}

	v := NewValidator()
	in.validate(v, h.opts.Locales)
	if !v.Valid() {
		h.observe(OutcomeInvalid)
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: v.Errors})
		return
	}

	sub := in.submission(h.opts.NewID(), h.opts.Now(), h.opts.Locales)
	sub.RequestID = httpmw.RequestIDFromContext(ctx)

	if err := h.deliver(ctx, sub); err != nil {
		h.observe(OutcomeDeliveryFailed)
		L.Error(ctx, err, "contact delivery failed", "submission_id", sub.ID)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "delivery failed"})
		return
	}

	h.observe(OutcomeAccepted)
	L.Info(ctx, "contact submission accepted", "submission_id", sub.ID, "locale", sub.Locale)
	writeJSON(w, http.StatusAccepted, acceptedBody{OK: true, ID: sub.ID})
}

// deliver runs every notifier concurrently, all of them must succeed
func (h *Handler) deliver(ctx context.Context, s *Submission) error {
	if len(h.opts.Notifiers) == 0 {
		return nil
	}
	// a client hanging up must not abort a delivery that is underway
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.DeliveryTimeout)
	defer cancel()

	errs := make([]error, len(h.opts.Notifiers))
	var wg sync.WaitGroup
	for i, n := range h.opts.Notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			nctx, span := otelx.Tracer().Start(ctx, "contact.notify", trace.WithAttributes(
				attribute.String("contact.notifier", n.Name()),
				attribute.String("contact.submission_id", s.ID),
			))
			err := n.Notify(nctx, s)
			otelx.EndSpan(span, err)
			if err != nil {
				errs[i] = xerrors.Wrapf(err, "notifier %s", n.Name())
			}
		}(i, n)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (h *Handler) observe(outcome string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.IncContactSubmission(outcome)
	}
}

func isJSON(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}

// decodeJSON accepts exactly one JSON object with known fields only
func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = xerrors.New("body must contain a single JSON object")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newSubmissionID returns a time-ordered uuid so archive listings sort by arrival
func newSubmissionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

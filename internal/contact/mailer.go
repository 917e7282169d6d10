package contact

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	"net"
	"net/smtp"
	"text/template"
	"time"

	"github.com/jordan-wright/email"
	"golang.org/x/time/rate"

	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

//go:embed templates
var templateFS embed.FS

var (
	textTmpl = template.Must(template.ParseFS(templateFS, "templates/notification.txt.tmpl"))
	htmlTmpl = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/notification.html.tmpl"))
)

// Notifier delivers a submission somewhere. Notify must honour ctx.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, s *Submission) error
}

type MailerOptions struct {
	// Addr is the SMTP server host:port
	Addr     string
	Username string
	Password string
	// From must usually equal Username for authenticated relays
	From string
	To   []string
	// PerMinute and Burst throttle outbound mail, default 10/min with a burst of 3
	PerMinute float64
	Burst     int
}

// Mailer sends one notification email per submission
type Mailer struct {
	opts    MailerOptions
	limiter *rate.Limiter
	auth    smtp.Auth
	send    func(e *email.Email) error
}

func NewMailer(opts MailerOptions) (*Mailer, error) {
	if opts.Addr == "" {
		return nil, xerrors.New("smtp addr is required")
	}
	host, _, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "smtp addr %q", opts.Addr)
	}
	if opts.From == "" {
		return nil, xerrors.New("smtp from address is required")
	}
	if len(opts.To) == 0 {
		return nil, xerrors.New("at least one smtp recipient is required")
	}
	if opts.PerMinute <= 0 {
		opts.PerMinute = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 3
	}

	m := &Mailer{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.PerMinute/60), opts.Burst),
	}
	if opts.Username != "" {
		m.auth = smtp.PlainAuth("", opts.Username, opts.Password, host)
	}
	m.send = func(e *email.Email) error { return e.Send(opts.Addr, m.auth) }
	return m, nil
}

func (m *Mailer) Name() string { return "smtp" }

// Notify waits for the outbound throttle then sends. The SMTP exchange itself cannot be
// interrupted, on cancellation Notify returns and the send finishes in the background.
func (m *Mailer) Notify(ctx context.Context, s *Submission) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return xerrors.Mark(xerrors.Wrap(err, "smtp throttle"), xerrors.KindUnavailable)
	}

	e, err := m.compose(s)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- m.send(e) }()

	select {
	case err := <-errc:
		if err != nil {
			return xerrors.Mark(xerrors.Wrapf(err, "send mail via %s", m.opts.Addr), xerrors.KindUnavailable)
		}
		return nil
	case <-ctx.Done():
		return xerrors.Mark(xerrors.Wrap(ctx.Err(), "send mail"), xerrors.KindUnavailable)
	}
}

func (m *Mailer) compose(s *Submission) (*email.Email, error) {
	var subject, plain, html bytes.Buffer
	if err := textTmpl.ExecuteTemplate(&subject, "subject", s); err != nil {
		return nil, xerrors.Wrap(err, "render subject")
	}
	if err := textTmpl.ExecuteTemplate(&plain, "plainBody", s); err != nil {
		return nil, xerrors.Wrap(err, "render plain body")
	}
	if err := htmlTmpl.ExecuteTemplate(&html, "htmlBody", s); err != nil {
		return nil, xerrors.Wrap(err, "render html body")
	}

	e := email.NewEmail()
	e.From = m.opts.From
	e.To = append([]string(nil), m.opts.To...)
	e.ReplyTo = []string{s.Email}
	e.Subject = subject.String()
	e.Text = plain.Bytes()
	e.HTML = html.Bytes()
	e.Headers.Set("X-Submission-Id", s.ID)
	e.Headers.Set("Date", s.ReceivedAt.Format(time.RFC1123Z))
	return e, nil
}

package mailer

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"time"

	gomail "gopkg.in/gomail.v2"

	"github.com/dripwire/dripwire-backend/pkg/config"
	"github.com/dripwire/dripwire-backend/pkg/enums"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

// SMTPGateway delivers through a single upstream SMTP relay.
type SMTPGateway struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
	logger  *logger.Logger
}

// NewSMTPGateway builds a gateway from mailer config.
func NewSMTPGateway(cfg config.MailerConfig, log *logger.Logger) (*SMTPGateway, error) {
	if cfg.SMTPHost == "" {
		return nil, errors.New("mailer: smtp host is required")
	}
	if log == nil {
		return nil, errors.New("mailer: logger is required")
	}
	return &SMTPGateway{
		dialer:  gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
		from:    cfg.DefaultFrom,
		timeout: cfg.SendTimeout,
		logger:  log,
	}, nil
}

func (g *SMTPGateway) Send(ctx context.Context, msg Message) Result {
	m := gomail.NewMessage()
	from := msg.From
	if from == "" {
		from = g.from
	}
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	sendCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- g.dialer.DialAndSend(m)
	}()

	select {
	case <-sendCtx.Done():
		// The dial goroutine is abandoned; gomail has no cancellation.
		logCtx := g.logger.WithFields(ctx, map[string]any{
			"email_id": msg.EmailID.String(),
			"to":       msg.To,
		})
		g.logger.Warn(logCtx, "smtp send timed out")
		return Result{Reason: "smtp timeout"}
	case err := <-done:
		if err == nil {
			return Result{Delivered: true}
		}
		return classifySMTPError(err)
	}
}

// classifySMTPError maps an SMTP failure onto the retry/bounce split. 5xx
// replies are permanent hard bounces; everything else is worth retrying.
func classifySMTPError(err error) Result {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		if proto.Code >= 500 {
			return Result{
				Permanent:  true,
				BounceType: enums.BounceHard,
				Reason:     proto.Msg,
			}
		}
		return Result{BounceType: enums.BounceSoft, Reason: proto.Msg}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Result{Reason: "smtp timeout"}
	}
	return Result{Reason: err.Error()}
}

package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"

	"github.com/conselhomais/portal"
	"github.com/conselhomais/portal/internal/config"
)

// SMTPMailer sends the contact-notification and reply mails. Template
// variables mirror the ones the site has always sent: from_name, from_email,
// subject, message, company for notifications; to_name, reply_message,
// original_subject for replies.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(conf config.SMTP) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(conf.Host, conf.Port, conf.Username, conf.Password),
		from:   conf.From,
	}
}

func (m *SMTPMailer) SendContactNotification(ctx context.Context, msg portal.Message, recipient string) error {
	company := msg.Company
	if company == "" {
		company = "N/A"
	}

	mail := gomail.NewMessage()
	mail.SetHeader("From", fmt.Sprintf("Conselho+ <%s>", m.from))
	mail.SetHeader("To", recipient)
	mail.SetHeader("Subject", fmt.Sprintf("Novo contato: %s", msg.Subject))

	plain := fmt.Sprintf(
		`Nova mensagem recebida pelo site.

Nome: %s
E-mail: %s
Empresa: %s
Assunto: %s

%s`,
		msg.Name, msg.Email, company, msg.Subject, msg.Content,
	)

	html := fmt.Sprintf(
		`<p>Nova mensagem recebida pelo site.</p>
<p><strong>Nome:</strong> %s<br/>
<strong>E-mail:</strong> %s<br/>
<strong>Empresa:</strong> %s<br/>
<strong>Assunto:</strong> %s</p>
<blockquote>%s</blockquote>`,
		msg.Name, msg.Email, company, msg.Subject, msg.Content,
	)

	mail.SetBody("text/plain", plain)
	mail.AddAlternative("text/html", html)

	if err := m.dialer.DialAndSend(mail); err != nil {
		return errors.Wrapf(portal.ErrDispatchFailed, "notification to %s: %v", recipient, err)
	}
	return nil
}

func (m *SMTPMailer) SendReply(ctx context.Context, msg portal.Message, replyText string) error {
	mail := gomail.NewMessage()
	mail.SetHeader("From", fmt.Sprintf("Conselho+ <%s>", m.from))
	mail.SetHeader("To", msg.Email)
	mail.SetHeader("Subject", fmt.Sprintf("Re: %s", msg.Subject))

	plain := fmt.Sprintf(
		`Olá %s,

%s

--
Esta é uma resposta à sua mensagem "%s".`,
		msg.Name, replyText, msg.Subject,
	)

	html := fmt.Sprintf(
		`<p>Olá %s,</p>
<p>%s</p>
<hr/>
<p style="color:#666">Esta é uma resposta à sua mensagem "%s".</p>`,
		msg.Name, replyText, msg.Subject,
	)

	mail.SetBody("text/plain", plain)
	mail.AddAlternative("text/html", html)

	if err := m.dialer.DialAndSend(mail); err != nil {
		return errors.Wrapf(portal.ErrDispatchFailed, "reply to %s: %v", msg.Email, err)
	}
	return nil
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	"gopkg.in/gomail.v2"
)

// ErrNoRecipientAddress は宛先の社員にメールアドレスが登録されていないことを表します。
var ErrNoRecipientAddress = errors.New("notify: recipient has no email address")

// Sender はメール送信の抽象です。*gomail.Dialer が満たします。
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier は通知を宛先社員へのメールとして送信します。
type EmailNotifier struct {
	sender    Sender
	employees employee.Repository
	from      string
	baseURL   string
}

// NewEmailNotifier は EmailNotifier を生成します。baseURL は通知リンクを絶対 URL にするために使います。
func NewEmailNotifier(sender Sender, employees employee.Repository, from, baseURL string) *EmailNotifier {
	return &EmailNotifier{
		sender:    sender,
		employees: employees,
		from:      from,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// NewDialer は SMTP 設定から gomail.Dialer を生成します。
func NewDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

// Send は宛先社員のメールアドレスを解決して送信します。
// 宛先が別スコープの社員である場合は送信しません。
func (n *EmailNotifier) Send(ctx context.Context, msg offboarding.Notification) error {
	recipient, err := n.employees.FindByID(ctx, msg.RecipientID)
	if err != nil {
		return fmt.Errorf("notify: resolve recipient %s: %w", msg.RecipientID, err)
	}
	if msg.ScopeID != "" && recipient.ScopeID != msg.ScopeID {
		return fmt.Errorf("notify: resolve recipient %s: %w", msg.RecipientID, employee.ErrEmployeeNotFound)
	}
	if strings.TrimSpace(recipient.Email) == "" {
		return ErrNoRecipientAddress
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetAddressHeader("To", recipient.Email, recipient.FullName)
	m.SetHeader("Subject", msg.Title)
	m.SetBody("text/plain", n.body(msg))

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("notify: send mail to %s: %w", msg.RecipientID, err)
	}
	return nil
}

func (n *EmailNotifier) body(msg offboarding.Notification) string {
	var b strings.Builder
	b.WriteString(msg.Message)
	if msg.Link != "" {
		b.WriteString("\n\n")
		b.WriteString(n.baseURL)
		b.WriteString(msg.Link)
	}
	b.WriteString("\n")
	return b.String()
}

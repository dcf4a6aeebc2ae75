package notifier

import (
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// 中文说明：
// SMTP 邮件通知器：当 AI 判定候选风险为 none 时，把候选摘要发送到指定邮箱。
// 发送失败由调用方记日志，不中断分析流程。

type Mailer struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	To            []string
	SubjectPrefix string
}

func NewMailer(host string, port int, username, password, from string, to []string) *Mailer {
	if port <= 0 {
		port = 587
	}
	return &Mailer{Host: host, Port: port, Username: username, Password: password, From: from, To: to}
}

// Send 发送一封纯文本邮件（带最多 3 次重试）。
func (m *Mailer) Send(subject, body string) error {
	if m.Host == "" || m.From == "" || len(m.To) == 0 {
		return fmt.Errorf("SMTP 配置不完整")
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	if prefix := strings.TrimSpace(m.SubjectPrefix); prefix != "" {
		subject = strings.TrimSpace(prefix + " " + subject)
	}
	msg := buildMessage(m.From, m.To, subject, body)

	var lastErr error
	for i := 0; i < 3; i++ {
		err := smtp.SendMail(addr, auth, m.From, m.To, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return lastErr
}

// buildMessage 组装 RFC 5322 报文，主题按 RFC 2047 编码以兼容日文。
func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

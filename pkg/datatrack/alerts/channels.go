package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every network channel call.
const DefaultTimeout = 10 * time.Second

// LogChannel writes alerts as warn records.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel returns a channel logging to logger, or slog.Default() when nil.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Notify(ctx context.Context, message string, fields map[string]any) error {
	c.logger.WarnContext(ctx, "ALERT: "+message, "context", string(encodeFields(fields)))
	return nil
}

// WebhookChannel posts Slack-compatible messages to an incoming webhook.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel returns a channel posting to url. A nil client gets
// DefaultTimeout.
func NewWebhookChannel(url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &WebhookChannel{url: url, client: client}
}

func (c *WebhookChannel) Name() string { return "webhook" }

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

func (c *WebhookChannel) Notify(ctx context.Context, message string, fields map[string]any) error {
	msg := slackMessage{Text: "Pipeline Alert: " + message}
	if len(fields) > 0 {
		att := slackAttachment{Color: "danger"}
		for _, k := range sortedKeys(fields) {
			att.Fields = append(att.Fields, slackField{Title: k, Value: fmt.Sprint(fields[k]), Short: true})
		}
		msg.Attachments = []slackAttachment{att}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	return postJSON(ctx, c.client, c.url, "", body)
}

// EmailChannel sends alerts through an SMTP relay using PLAIN auth.
type EmailChannel struct {
	addr       string
	host       string
	sender     string
	password   string
	recipients []string

	send func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel returns a channel sending from sender to recipients via
// host:port.
func NewEmailChannel(host string, port int, sender, password string, recipients []string) *EmailChannel {
	c := &EmailChannel{
		addr:       net.JoinHostPort(host, strconv.Itoa(port)),
		host:       host,
		sender:     sender,
		password:   password,
		recipients: append([]string(nil), recipients...),
	}
	c.send = c.sendMail
	return c
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Notify(ctx context.Context, message string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", c.sender)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.recipients, ", "))
	msg.WriteString("Subject: Pipeline Alert\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString("Alert: " + message + "\r\n\r\n")
	msg.WriteString("Context:\r\n")
	msg.Write(encodeFieldsIndent(fields))
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if c.password != "" {
		auth = smtp.PlainAuth("", c.sender, c.password, c.host)
	}
	if err := c.send(ctx, c.addr, auth, c.sender, c.recipients, msg.Bytes()); err != nil {
		return fmt.Errorf("send alert email via %s: %w", c.addr, err)
	}
	return nil
}

// sendMail is smtp.SendMail with the whole exchange bounded by ctx and
// DefaultTimeout, whichever ends first.
func (c *EmailChannel) sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	dialer := net.Dialer{Timeout: DefaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(DefaultTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// SMSChannel posts one message per recipient to an HTTP SMS gateway.
type SMSChannel struct {
	url        string
	apiKey     string
	from       string
	recipients []string
	client     *http.Client
}

// NewSMSChannel returns a channel for the gateway at providerURL.
func NewSMSChannel(providerURL, apiKey, from string, recipients []string, client *http.Client) *SMSChannel {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &SMSChannel{
		url:        providerURL,
		apiKey:     apiKey,
		from:       from,
		recipients: append([]string(nil), recipients...),
		client:     client,
	}
}

func (c *SMSChannel) Name() string { return "sms" }

type smsMessage struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"message"`
}

// Notify tries every recipient and returns the first failure.
func (c *SMSChannel) Notify(ctx context.Context, message string, _ map[string]any) error {
	var first error
	for _, to := range c.recipients {
		body, err := json.Marshal(smsMessage{To: to, From: c.from, Body: "Pipeline Alert: " + message})
		if err == nil {
			err = postJSON(ctx, c.client, c.url, c.apiKey, body)
		}
		if err != nil && first == nil {
			first = fmt.Errorf("sms to %s: %w", to, err)
		}
	}
	return first
}

func postJSON(ctx context.Context, client *http.Client, url, bearer string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// encodeFields renders fields as JSON, falling back to string values for
// anything encoding/json rejects.
func encodeFields(fields map[string]any) []byte {
	if b, err := json.Marshal(fields); err == nil {
		return b
	}
	b, _ := json.Marshal(stringify(fields))
	return b
}

func encodeFieldsIndent(fields map[string]any) []byte {
	if b, err := json.MarshalIndent(fields, "", "  "); err == nil {
		return b
	}
	b, _ := json.MarshalIndent(stringify(fields), "", "  ")
	return b
}

func stringify(fields map[string]any) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = fmt.Sprint(v)
	}
	return out
}

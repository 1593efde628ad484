package alerts

import (
	"log/slog"
	"net/http"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/config"
)

// Constructor builds a channel from configuration, or returns nil when the
// configuration does not enable it.
type Constructor func(cfg config.Alerts, env Env) Channel

// Env carries the collaborators channel constructors may need.
type Env struct {
	Logger *slog.Logger
	Client *http.Client
}

// Priority is the order in which Select tries configured channels.
var Priority = []Constructor{
	webhookFromConfig,
	emailFromConfig,
	smsFromConfig,
}

// Select returns the first configured channel in Priority order, falling
// back to a LogChannel. Only one channel is ever returned.
func Select(cfg config.Alerts, logger *slog.Logger) Channel {
	return SelectFrom(Priority, cfg, Env{Logger: logger})
}

// SelectFrom is Select over an explicit constructor list.
func SelectFrom(ctors []Constructor, cfg config.Alerts, env Env) Channel {
	for _, ctor := range ctors {
		if ch := ctor(cfg, env); ch != nil {
			return ch
		}
	}
	return NewLogChannel(env.Logger)
}

func webhookFromConfig(cfg config.Alerts, env Env) Channel {
	if cfg.SlackWebhook == "" {
		return nil
	}
	return NewWebhookChannel(cfg.SlackWebhook, env.Client)
}

func emailFromConfig(cfg config.Alerts, _ Env) Channel {
	e := cfg.Email
	if e.SMTPHost == "" || e.Sender == "" || len(e.Recipients) == 0 {
		return nil
	}
	port := e.SMTPPort
	if port == 0 {
		port = 587
	}
	return NewEmailChannel(e.SMTPHost, port, e.Sender, e.Password, e.Recipients)
}

func smsFromConfig(cfg config.Alerts, env Env) Channel {
	s := cfg.SMS
	if s.ProviderURL == "" || s.APIKey == "" || len(s.RecipientNumbers) == 0 {
		return nil
	}
	return NewSMSChannel(s.ProviderURL, s.APIKey, s.SenderNumber, s.RecipientNumbers, env.Client)
}

package dashboard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is an alert event kept for the dashboard alert list.
type Alert struct {
	ID             string         `json:"id"`
	Subject        string         `json:"subject,omitempty"`
	Message        string         `json:"message"`
	Severity       AlertSeverity  `json:"severity"`
	Status         AlertStatus    `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	Metadata       map[string]any `json:"metadata"`
}

type alertStore struct {
	mu     sync.RWMutex
	max    int
	alerts []Alert
}

func newAlertStore(max int) *alertStore {
	return &alertStore{max: max}
}

func (st *alertStore) add(ev Event) Alert {
	msg := stringField(ev.Data, "message")
	a := Alert{
		ID:        uuid.NewString(),
		Subject:   stringField(ev.Data, "subject"),
		Message:   msg,
		Severity:  severityOf(ev.Data, msg),
		Status:    AlertStatusActive,
		CreatedAt: ev.Timestamp,
		UpdatedAt: ev.Timestamp,
		Metadata:  ev.Data,
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.alerts = append(st.alerts, a)
	if len(st.alerts) > st.max {
		copy(st.alerts, st.alerts[1:])
		st.alerts = st.alerts[:st.max]
	}
	return a
}

// list returns matching alerts newest first.
func (st *alertStore) list(status AlertStatus, severity AlertSeverity) []Alert {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Alert, 0, len(st.alerts))
	for i := len(st.alerts) - 1; i >= 0; i-- {
		a := st.alerts[i]
		if status != "" && a.Status != status {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (st *alertStore) setStatus(id string, status AlertStatus, user string) (Alert, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range st.alerts {
		if st.alerts[i].ID != id {
			continue
		}
		st.alerts[i].Status = status
		st.alerts[i].UpdatedAt = time.Now()
		if status == AlertStatusAcknowledged && user != "" {
			st.alerts[i].AcknowledgedBy = user
		}
		return st.alerts[i], true
	}
	return Alert{}, false
}

// severityOf prefers an explicit "severity" field and otherwise grades
// the message text.
func severityOf(data map[string]any, msg string) AlertSeverity {
	switch sev := AlertSeverity(strings.ToLower(stringField(data, "severity"))); sev {
	case AlertSeverityLow, AlertSeverityMedium, AlertSeverityHigh, AlertSeverityCritical:
		return sev
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "critical"), strings.Contains(lower, "panic"):
		return AlertSeverityCritical
	case strings.Contains(lower, "error"), strings.Contains(lower, "exceeded"):
		return AlertSeverityHigh
	case strings.Contains(lower, "info"):
		return AlertSeverityLow
	default:
		return AlertSeverityMedium
	}
}

func stringField(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Package audit provides security audit logging for SIEM consumption.
// Events are emitted as structured log entries under the "security_audit"
// logger so they can be routed and alerted on separately.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a filter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventQueryExecution is logged when a compiled query is sent to the engine.
	EventQueryExecution SecurityEventType = "query_execution"
)

// maxLoggedValue caps how much of an attacker-controlled value reaches the logs.
const maxLoggedValue = 256

// SecurityEvent is the JSON document embedded in each audit entry.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id"`
	Subject   string            `json:"subject,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes a filter value rejected by the injection screen.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"`
	Question    string `json:"question,omitempty"`
}

// ExecutionDetails describes a query sent to the engine.
type ExecutionDetails struct {
	CatalogVersion string   `json:"catalog_version"`
	Measures       []string `json:"measures"`
	Dimensions     []string `json:"dimensions,omitempty"`
	Rows           int      `json:"rows"`
}

// SecurityAuditor logs security events.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor logging under "security_audit".
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a filter value that matched an injection
// pattern. Logged at ERROR with critical severity.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, requestID string, details InjectionDetails) {
	details.Value = truncate(details.Value)
	event := a.event(ctx, EventSQLInjectionAttempt, requestID, details, "critical")

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", marshalEvent(event)),
		zap.String("request_id", requestID),
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("subject", event.Subject),
		zap.String("severity", event.Severity),
	)
}

// LogQueryExecution records a query run against the engine. Logged at INFO.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, requestID string, details ExecutionDetails) {
	event := a.event(ctx, EventQueryExecution, requestID, details, "info")

	a.logger.Info("Query executed",
		zap.String("event_json", marshalEvent(event)),
		zap.String("request_id", requestID),
		zap.String("catalog_version", details.CatalogVersion),
		zap.Int("rows", details.Rows),
		zap.String("subject", event.Subject),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) event(ctx context.Context, eventType SecurityEventType, requestID string, details any, severity string) SecurityEvent {
	var subject string
	if claims, ok := auth.GetClaims(ctx); ok && claims != nil {
		subject = claims.Subject
	}
	return SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: requestID,
		Subject:   subject,
		Details:   details,
		Severity:  severity,
	}
}

func marshalEvent(event SecurityEvent) string {
	// Marshaling these types cannot fail.
	b, _ := json.Marshal(event)
	return string(b)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxLoggedValue {
		return s
	}
	return string(r[:maxLoggedValue]) + "..."
}

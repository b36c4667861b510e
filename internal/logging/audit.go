// Package logging also provides audit logging: structured, greppable event
// records for circuit breaker transitions, API calls, turn lifecycle, and
// decision-source usage, written to their own log file independent of the
// category loggers.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType identifies the kind of audit event.
type AuditEventType string

const (
	// Circuit breaker state transitions (§4.2)
	AuditBreakerOpen     AuditEventType = "breaker_open"
	AuditBreakerHalfOpen AuditEventType = "breaker_half_open"
	AuditBreakerClose    AuditEventType = "breaker_close"
	AuditBreakerReject   AuditEventType = "breaker_reject"

	// Remote API calls (§4.1)
	AuditAPIRequest  AuditEventType = "api_request"
	AuditAPIResponse AuditEventType = "api_response"
	AuditAPIError    AuditEventType = "api_error"

	// Polling loops (§4.4)
	AuditPollCycle  AuditEventType = "poll_cycle"
	AuditPollError  AuditEventType = "poll_error"
	AuditPollIdle   AuditEventType = "poll_idle"
	AuditPollActive AuditEventType = "poll_active"

	// Matchmaking (§4.4)
	AuditMatchmakingJoin  AuditEventType = "matchmaking_join"
	AuditMatchmakingLeave AuditEventType = "matchmaking_leave"
	AuditMatchmakingFound AuditEventType = "matchmaking_found"

	// Game/turn lifecycle (§4.5, §4.6)
	AuditGameStart  AuditEventType = "game_start"
	AuditGameEnd    AuditEventType = "game_end"
	AuditTurnStart  AuditEventType = "turn_start"
	AuditTurnEnd    AuditEventType = "turn_end"
	AuditChainWait  AuditEventType = "chain_wait"

	// Action execution (§4.6)
	AuditActionExecute  AuditEventType = "action_execute"
	AuditActionComplete AuditEventType = "action_complete"
	AuditActionError    AuditEventType = "action_error"
	AuditActionIllegal  AuditEventType = "action_illegal"

	// Decision source calls (§4.6.3)
	AuditDecisionRequest  AuditEventType = "decision_request"
	AuditDecisionResponse AuditEventType = "decision_response"
	AuditDecisionError    AuditEventType = "decision_error"
	AuditDecisionFallback AuditEventType = "decision_fallback"

	// Event derivation / webhook push path (§4.5)
	AuditEventDerived    AuditEventType = "event_derived"
	AuditWebhookReceived AuditEventType = "webhook_received"
	AuditWebhookRejected AuditEventType = "webhook_rejected"

	// Decision history persistence (§4.7)
	AuditDecisionSaved AuditEventType = "decision_saved"

	// Performance
	AuditPerfMetric AuditEventType = "perf_metric"
	AuditPerfSlow   AuditEventType = "perf_slow"

	// Generic errors
	AuditErrorGeneric  AuditEventType = "error_generic"
	AuditErrorCritical AuditEventType = "error_critical"
	AuditErrorRecovery AuditEventType = "error_recovery"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent is a single structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat"`
	SessionID  string                 `json:"session"`
	RequestID  string                 `json:"req"`
	GameID     string                 `json:"game"`
	Target     string                 `json:"target"`
	Action     string                 `json:"action"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields"`
	Fact       string                 `json:"fact"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging.
type AuditLogger struct {
	sessionID string
	category  Category
	gameID    string
}

// InitAudit initializes the audit logging system.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithSession creates an audit logger scoped to a streaming session.
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// AuditWithGame creates an audit logger scoped to a game.
func AuditWithGame(gameID string) *AuditLogger {
	return &AuditLogger{gameID: gameID}
}

// AuditWithContext creates a fully-scoped audit logger.
func AuditWithContext(sessionID, gameID string, category Category) *AuditLogger {
	return &AuditLogger{
		sessionID: sessionID,
		gameID:    gameID,
		category:  category,
	}
}

// =============================================================================
// AUDIT LOGGING METHODS
// =============================================================================

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" && a.sessionID != "" {
		event.SessionID = a.sessionID
	}
	if event.GameID == "" && a.gameID != "" {
		event.GameID = a.gameID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	event.Fact = renderFact(event)

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// renderFact builds a compact single-line summary of the event, independent
// of the full JSON record, for fast grepping across a day's audit log.
func renderFact(e AuditEvent) string {
	switch e.EventType {
	case AuditBreakerOpen, AuditBreakerHalfOpen, AuditBreakerClose, AuditBreakerReject:
		return fmt.Sprintf("breaker(%d, %s, %s, %v)", e.Timestamp, e.EventType, e.Target, e.Success)

	case AuditAPIRequest, AuditAPIResponse, AuditAPIError:
		return fmt.Sprintf("api_call(%d, %s, %s, %v, %dms)", e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditPollCycle, AuditPollError, AuditPollIdle, AuditPollActive:
		return fmt.Sprintf("poll(%d, %s, %s, %v)", e.Timestamp, e.EventType, e.GameID, e.Success)

	case AuditMatchmakingJoin, AuditMatchmakingLeave, AuditMatchmakingFound:
		return fmt.Sprintf("matchmaking(%d, %s, %s)", e.Timestamp, e.EventType, e.Target)

	case AuditGameStart, AuditGameEnd, AuditTurnStart, AuditTurnEnd, AuditChainWait:
		return fmt.Sprintf("game_event(%d, %s, %s, %v)", e.Timestamp, e.EventType, e.GameID, e.Success)

	case AuditActionExecute, AuditActionComplete, AuditActionError, AuditActionIllegal:
		return fmt.Sprintf("action(%d, %s, %s, %s, %v, %dms)", e.Timestamp, e.EventType, e.GameID, e.Action, e.Success, e.DurationMs)

	case AuditDecisionRequest, AuditDecisionResponse, AuditDecisionError, AuditDecisionFallback:
		tokens := 0
		if t, ok := e.Fields["tokens"].(int); ok {
			tokens = t
		}
		return fmt.Sprintf("decision(%d, %s, %s, %v, %dms, %d)", e.Timestamp, e.EventType, e.GameID, e.Success, e.DurationMs, tokens)

	case AuditEventDerived, AuditWebhookReceived, AuditWebhookRejected:
		return fmt.Sprintf("event(%d, %s, %s, %v)", e.Timestamp, e.EventType, e.GameID, e.Success)

	case AuditDecisionSaved:
		return fmt.Sprintf("history(%d, %s, %s)", e.Timestamp, e.GameID, e.Action)

	case AuditPerfMetric, AuditPerfSlow:
		return fmt.Sprintf("perf(%d, %s, %s, %dms)", e.Timestamp, e.Category, e.Action, e.DurationMs)

	case AuditErrorGeneric, AuditErrorCritical, AuditErrorRecovery:
		return fmt.Sprintf("error(%d, %s, %s, %s)", e.Timestamp, e.EventType, e.Category, escapeString(e.Error))

	default:
		return fmt.Sprintf("audit(%d, %s, %s, %s, %v)", e.Timestamp, e.EventType, e.Category, escapeString(e.Message), e.Success)
	}
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// BreakerTransition logs a circuit breaker state change.
func (a *AuditLogger) BreakerTransition(eventType AuditEventType, operation string, success bool) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    operation,
		Success:   success,
		Message:   fmt.Sprintf("breaker %s: %s", eventType, operation),
	})
}

// APICall logs a remote game API round trip.
func (a *AuditLogger) APICall(operation string, durationMs int64, success bool, errMsg string) {
	eventType := AuditAPIResponse
	if !success {
		eventType = AuditAPIError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     operation,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("%s (%dms, success=%v)", operation, durationMs, success),
	})
}

// PollCycle logs a single polling loop iteration.
func (a *AuditLogger) PollCycle(gameID string, changed bool) {
	eventType := AuditPollIdle
	if changed {
		eventType = AuditPollActive
	}
	a.Log(AuditEvent{
		EventType: eventType,
		GameID:    gameID,
		Success:   true,
		Fields:    map[string]interface{}{"changed": changed},
	})
}

// GameStart logs the first observed snapshot for a game.
func (a *AuditLogger) GameStart(gameID string) {
	a.Log(AuditEvent{
		EventType: AuditGameStart,
		GameID:    gameID,
		Success:   true,
		Message:   fmt.Sprintf("game started: %s", gameID),
	})
}

// GameEnd logs a game's terminal state.
func (a *AuditLogger) GameEnd(gameID, result string) {
	a.Log(AuditEvent{
		EventType: AuditGameEnd,
		GameID:    gameID,
		Success:   true,
		Fields:    map[string]interface{}{"result": result},
		Message:   fmt.Sprintf("game ended: %s (%s)", gameID, result),
	})
}

// TurnStart logs the start of an agent turn.
func (a *AuditLogger) TurnStart(gameID string, turnNumber int) {
	a.Log(AuditEvent{
		EventType: AuditTurnStart,
		GameID:    gameID,
		Success:   true,
		Fields:    map[string]interface{}{"turn": turnNumber},
	})
}

// TurnEnd logs the end of an agent turn.
func (a *AuditLogger) TurnEnd(gameID string, turnNumber, actionsTaken int, durationMs int64, success bool) {
	a.Log(AuditEvent{
		EventType:  AuditTurnEnd,
		GameID:     gameID,
		Success:    success,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"turn": turnNumber, "actions": actionsTaken},
	})
}

// ActionResult logs the outcome of a single executed action.
func (a *AuditLogger) ActionResult(gameID, action string, durationMs int64, success bool, errMsg string) {
	eventType := AuditActionComplete
	if !success {
		eventType = AuditActionError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		GameID:     gameID,
		Action:     action,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
	})
}

// DecisionCall logs a probabilistic decision source request/response.
func (a *AuditLogger) DecisionCall(gameID string, tokens int, durationMs int64, success bool, errMsg string) {
	eventType := AuditDecisionResponse
	if !success {
		eventType = AuditDecisionError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		GameID:     gameID,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"tokens": tokens},
	})
}

// DecisionFallback logs a fallback to the deterministic selector.
func (a *AuditLogger) DecisionFallback(gameID, reason string) {
	a.Log(AuditEvent{
		EventType: AuditDecisionFallback,
		GameID:    gameID,
		Success:   true,
		Fields:    map[string]interface{}{"reason": reason},
		Message:   fmt.Sprintf("decision fallback: %s", reason),
	})
}

// EventDerived logs a derived event emitted from a snapshot diff.
func (a *AuditLogger) EventDerived(gameID, eventKind string) {
	a.Log(AuditEvent{
		EventType: AuditEventDerived,
		GameID:    gameID,
		Success:   true,
		Fields:    map[string]interface{}{"kind": eventKind},
	})
}

// WebhookResult logs an inbound webhook's verification outcome.
func (a *AuditLogger) WebhookResult(gameID string, accepted bool, reason string) {
	eventType := AuditWebhookReceived
	if !accepted {
		eventType = AuditWebhookRejected
	}
	a.Log(AuditEvent{
		EventType: eventType,
		GameID:    gameID,
		Success:   accepted,
		Fields:    map[string]interface{}{"reason": reason},
	})
}

// DecisionSaved logs a fire-and-forget decision history persist.
func (a *AuditLogger) DecisionSaved(gameID, action string) {
	a.Log(AuditEvent{
		EventType: AuditDecisionSaved,
		GameID:    gameID,
		Action:    action,
		Success:   true,
	})
}

// PerfMetric logs a performance metric, flagging slow operations.
func (a *AuditLogger) PerfMetric(operation string, durationMs int64, threshold int64) {
	eventType := AuditPerfMetric
	success := true
	if threshold > 0 && durationMs > threshold {
		eventType = AuditPerfSlow
		success = false
	}
	fields := map[string]interface{}{}
	if threshold > 0 {
		fields["threshold_ms"] = threshold
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Action:     operation,
		DurationMs: durationMs,
		Success:    success,
		Fields:     fields,
	})
}

// Error logs a generic error event.
func (a *AuditLogger) Error(category string, err error, critical bool) {
	eventType := AuditErrorGeneric
	if critical {
		eventType = AuditErrorCritical
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  category,
		Success:   false,
		Error:     errMsg,
	})
}

package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

// Log is the audit log storage contract. Implementations must never let a
// write failure propagate back to the caller whose action is being
// audited — see Logger, the fail-safe wrapper every orchestrator
// component should depend on instead of Log directly.
type Log interface {
	Append(ctx context.Context, e *Event) error
	FindByUser(ctx context.Context, userID string, limit int) ([]*Event, error)
	FindBySession(ctx context.Context, sessionID string, limit int) ([]*Event, error)
	FindByType(ctx context.Context, eventType EventType, limit int) ([]*Event, error)
	FindBySeverityInWindow(ctx context.Context, minSeverity Severity, windowSeconds int, limit int) ([]*Event, error)
	Recent(ctx context.Context, limit int) ([]*Event, error)

	// VerifyChain walks every stored event oldest-first and recomputes
	// EventHash/PreviousEventHash, returning an error naming the first
	// event whose stored hash doesn't match what its payload and
	// predecessor actually produce. It is a maintenance operation, not
	// part of the request-serving path.
	VerifyChain(ctx context.Context) error
}

// sanitizeIP normalizes a raw address string to canonical form, or to ""
// if it isn't a plain IP or IP/CIDR.
func sanitizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if ip := net.ParseIP(raw); ip != nil {
		return ip.String()
	}
	if ip, ipNet, err := net.ParseCIDR(raw); err == nil {
		return ip.String() + "/" + strings.Split(ipNet.String(), "/")[1]
	}
	return ""
}

// canonicalPayload builds the deterministic byte sequence hashed into
// EventHash: JSON with map keys sorted (encoding/json already sorts map
// keys), excluding the hash fields themselves.
func canonicalPayload(e *Event) ([]byte, error) {
	type payload struct {
		ID             string         `json:"id"`
		UserID         string         `json:"userId"`
		SessionID      string         `json:"sessionId"`
		EventType      EventType      `json:"eventType"`
		EventSeverity  Severity       `json:"eventSeverity"`
		IPAddress      string         `json:"ipAddress"`
		UserAgent      string         `json:"userAgent"`
		Resource       string         `json:"resource"`
		Action         string         `json:"action"`
		Result         Result         `json:"result"`
		Metadata       map[string]any `json:"metadata"`
		RiskIndicators map[string]any `json:"riskIndicators"`
		CreatedAt      int64          `json:"createdAt"`
	}
	p := payload{
		ID: e.ID, UserID: e.UserID, SessionID: e.SessionID,
		EventType: e.EventType, EventSeverity: e.EventSeverity,
		IPAddress: e.IPAddress, UserAgent: e.UserAgent,
		Resource: e.Resource, Action: e.Action, Result: e.Result,
		Metadata: e.Metadata, RiskIndicators: e.RiskIndicators,
		CreatedAt: e.CreatedAt.UnixNano(),
	}
	return json.Marshal(p)
}

// computeHash returns SHA-256(canonicalPayload(e) || previousHash) as hex.
// When hash chaining is disabled, previousHash is always "".
func computeHash(e *Event, previousHash string) (string, error) {
	body, err := canonicalPayload(e)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(body)
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyChainEvents recomputes the hash chain over events, which must be
// ordered oldest first, and reports the first event at which the stored
// hash diverges from what its payload and predecessor actually produce.
// When chained is false, every event is expected to carry an empty
// PreviousEventHash, matching Append's behavior with hash chaining off.
func verifyChainEvents(events []*Event, chained bool) error {
	prev := ""
	for _, e := range events {
		if e.PreviousEventHash != prev {
			return fmt.Errorf("audit: event %s has previousEventHash %q, expected %q", e.ID, e.PreviousEventHash, prev)
		}
		hash, err := computeHash(e, prev)
		if err != nil {
			return fmt.Errorf("audit: event %s: %w", e.ID, err)
		}
		if hash != e.EventHash {
			return fmt.Errorf("audit: event %s has eventHash %q, recomputed %q", e.ID, e.EventHash, hash)
		}
		if chained {
			prev = e.EventHash
		}
	}
	return nil
}

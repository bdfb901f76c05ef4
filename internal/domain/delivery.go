package domain

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// Delivery record statuses. Pending covers both the in-flight first attempt
// and a scheduled retry; success and failed are terminal.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Truncation caps for stored receiver output.
const (
	ResponseSnippetLimit = 1000
	ErrorMessageLimit    = 500
)

// DeliveryAttemptRecord is the log row for one logical delivery. It is created
// on the first attempt and updated in place by its own retry chain.
type DeliveryAttemptRecord struct {
	ID              string          `json:"id"`
	SubscriptionID  string          `json:"subscription_id"`
	Event           string          `json:"event"`
	Status          string          `json:"status"`
	HTTPStatusCode  *int            `json:"http_status_code,omitempty"`
	ResponseSnippet *string         `json:"response_snippet,omitempty"`
	Error           *string         `json:"error,omitempty"`
	RetryCount      int             `json:"retry_count"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	NextRetryAt     *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Terminal reports whether no further attempts will be made.
func (r DeliveryAttemptRecord) Terminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusFailed
}

// Truncate cuts s to at most max runes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

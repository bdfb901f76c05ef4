package domain

import (
	"fmt"
	"net/http"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTransient
	OutcomePermanent
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient_failure"
	case OutcomePermanent:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one HTTP attempt. StatusCode is nil
// when no response was received.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode *int
	Body       string
	Message    string
}

// ClassifyResponse maps a received status code to an outcome: 2xx succeeds,
// 5xx is presumed transient, everything else is permanent.
func ClassifyResponse(code int, body string) Outcome {
	c := code
	switch {
	case code >= 200 && code < 300:
		return Outcome{Kind: OutcomeSuccess, StatusCode: &c, Body: body}
	case code >= 500:
		return Outcome{Kind: OutcomeTransient, StatusCode: &c, Body: body, Message: statusMessage(code, body)}
	default:
		return Outcome{Kind: OutcomePermanent, StatusCode: &c, Body: body, Message: statusMessage(code, body)}
	}
}

// TransportFailure is a network error or timeout; no response was received.
func TransportFailure(err error) Outcome {
	return Outcome{Kind: OutcomeTransient, Message: err.Error()}
}

// RequestFailure is an error building the request, which no retry can fix.
func RequestFailure(err error) Outcome {
	return Outcome{Kind: OutcomePermanent, Message: err.Error()}
}

func statusMessage(code int, body string) string {
	msg := fmt.Sprintf("HTTP %d %s", code, http.StatusText(code))
	if body != "" {
		msg += ": " + body
	}
	return msg
}

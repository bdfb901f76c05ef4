package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Subscription is a tenant-configured webhook endpoint. A nil ProjectID means
// the subscription covers every project in the company.
type Subscription struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	ProjectID   *string   `json:"project_id,omitempty"`
	URL         string    `json:"url"`
	Secret      *string   `json:"-"`
	Events      []string  `json:"events"`
	Active      bool      `json:"active"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MarshalJSON renders the subscription without its secret; reads only say
// whether one is set.
func (s Subscription) MarshalJSON() ([]byte, error) {
	type view Subscription
	return json.Marshal(struct {
		view
		Signed bool `json:"signed"`
	}{view(s), s.Signed()})
}

// CreateSubscriptionResponse is the create reply, the only response that
// echoes the secret back.
type CreateSubscriptionResponse struct {
	Subscription Subscription
}

func (r CreateSubscriptionResponse) MarshalJSON() ([]byte, error) {
	type view Subscription
	return json.Marshal(struct {
		view
		Signed bool    `json:"signed"`
		Secret *string `json:"secret,omitempty"`
	}{view(r.Subscription), r.Subscription.Signed(), r.Subscription.Secret})
}

// Signed reports whether deliveries to this subscription carry a signature.
func (s Subscription) Signed() bool {
	return s.Secret != nil && *s.Secret != ""
}

// Wants reports whether the subscription is registered for event.
func (s Subscription) Wants(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Matches applies the dispatch filter: active, same company, wants the event,
// and either company-wide or scoped to exactly projectID.
func (s Subscription) Matches(companyID, projectID, event string) bool {
	if !s.Active || s.CompanyID != companyID || !s.Wants(event) {
		return false
	}
	if s.ProjectID == nil {
		return true
	}
	return projectID != "" && *s.ProjectID == projectID
}

type CreateSubscriptionRequest struct {
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Secret      *string  `json:"secret,omitempty"`
	Description string   `json:"description,omitempty"`
	Active      *bool    `json:"active,omitempty"`
	ProjectID   *string  `json:"project_id,omitempty"`
}

// Validate checks the invariants a stored subscription must hold.
func (r CreateSubscriptionRequest) Validate() error {
	if err := ValidateURL(r.URL); err != nil {
		return err
	}
	return ValidateEvents(r.Events)
}

type UpdateSubscriptionRequest struct {
	URL         *string   `json:"url,omitempty"`
	Events      *[]string `json:"events,omitempty"`
	Secret      *string   `json:"secret,omitempty"`
	Description *string   `json:"description,omitempty"`
	Active      *bool     `json:"active,omitempty"`
	ProjectID   *string   `json:"project_id,omitempty"`
}

func (r UpdateSubscriptionRequest) Validate() error {
	if r.URL != nil {
		if err := ValidateURL(*r.URL); err != nil {
			return err
		}
	}
	if r.Events != nil {
		return ValidateEvents(*r.Events)
	}
	return nil
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("url is required")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("url is invalid: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("url must be an absolute http(s) URL")
	}
	return nil
}

// ValidateEvents requires a non-empty list drawn from the event vocabulary.
func ValidateEvents(events []string) error {
	if len(events) == 0 {
		return errors.New("at least one event is required")
	}
	for _, e := range events {
		if !IsKnownEvent(e) {
			return fmt.Errorf("unknown event %q", e)
		}
	}
	return nil
}

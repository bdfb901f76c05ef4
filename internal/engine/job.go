package engine

// DeliveryJob is one delivery of one event to one subscription. Body and
// Signature are fixed at dispatch time so every retry resends identical
// bytes. Body is []byte rather than json.RawMessage so a JSON round trip
// through the durable queue cannot re-encode it.
type DeliveryJob struct {
	DeliveryID     string `json:"delivery_id,omitempty"`
	SubscriptionID string `json:"subscription_id"`
	EndpointURL    string `json:"endpoint_url"`
	Event          string `json:"event"`
	Body           []byte `json:"body"`
	Signature      string `json:"signature,omitempty"`
	RetryCount     int    `json:"retry_count"`
}

// IsRetry reports whether the job continues an existing delivery record.
func (j DeliveryJob) IsRetry() bool {
	return j.DeliveryID != ""
}

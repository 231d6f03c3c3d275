package securelog

import (
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

// RequestContext is the request information attached to a log entry.
type RequestContext struct {
	RequestID string `json:"requestId"`
	UserID    string `json:"userId,omitempty"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Mobile    bool   `json:"mobile,omitempty"`
	Bot       bool   `json:"bot,omitempty"`
	Endpoint  string `json:"endpoint"`
	Method    string `json:"method"`
	Timestamp string `json:"timestamp"`
}

// NewRequestContext extracts the log context from a request descriptor. The
// correlation id is reused when present, otherwise a random one is assigned.
// Redaction happens later with the rest of the entry.
func NewRequestContext(d requestcontext.Descriptor, now time.Time) *RequestContext {
	rc := &RequestContext{
		RequestID: d.CorrelationID,
		UserID:    d.UserID,
		IP:        d.ClientIP(),
		UserAgent: d.UserAgent,
		Endpoint:  d.URL,
		Method:    d.Method,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if rc.RequestID == "" {
		rc.RequestID = uuid.NewString()
	}
	if rc.UserAgent == "" {
		rc.UserAgent = requestcontext.Unknown
		return rc
	}

	ua := useragent.New(d.UserAgent)
	rc.Browser, _ = ua.Browser()
	rc.OS = ua.OS()
	rc.Mobile = ua.Mobile()
	rc.Bot = ua.Bot()
	return rc
}

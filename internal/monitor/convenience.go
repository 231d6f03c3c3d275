package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

// LogFailedLogin records a rejected login. account is the targeted account
// and may be empty when the identifier matched nothing.
func (m *Monitor) LogFailedLogin(ctx context.Context, req requestcontext.Descriptor, account, reason string) {
	m.LogSecurityEvent(ctx, EventFailedLogin, SeverityMedium,
		"failed login attempt",
		WithRequest(req),
		WithUser(account),
		WithMetadata(map[string]any{"reason": reason}),
	)
}

func (m *Monitor) LogUnauthorizedAccess(ctx context.Context, req requestcontext.Descriptor, resource string) {
	m.LogSecurityEvent(ctx, EventUnauthorizedAccess, SeverityHigh,
		fmt.Sprintf("unauthorized access to %s", resource),
		WithRequest(req),
		WithMetadata(map[string]any{"resource": resource}),
	)
}

func (m *Monitor) LogSensitiveDataAccess(ctx context.Context, req requestcontext.Descriptor, dataType string, records int) {
	m.LogSecurityEvent(ctx, EventSensitiveDataAccess, SeverityLow,
		fmt.Sprintf("sensitive data accessed: %s", dataType),
		WithRequest(req),
		WithMetadata(map[string]any{"data_type": dataType, "records": records}),
	)
}

// LogAdminAction records an administrative operation performed by the
// request's user.
func (m *Monitor) LogAdminAction(ctx context.Context, req requestcontext.Descriptor, action string, metadata map[string]any) {
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["action"] = action

	m.LogSecurityEvent(ctx, EventAdminAction, SeverityLow,
		fmt.Sprintf("admin action: %s", action),
		WithRequest(req),
		WithMetadata(meta),
	)
}

func (m *Monitor) LogFileUploadAnomaly(ctx context.Context, req requestcontext.Descriptor, fileName, reason string) {
	m.LogSecurityEvent(ctx, EventSuspiciousUpload, SeverityHigh,
		fmt.Sprintf("suspicious file upload: %s", reason),
		WithRequest(req),
		WithMetadata(map[string]any{"file_name": fileName, "reason": reason}),
	)
}

// LogDatabaseErrorSpike is called by data access code that observed errorCount
// failures within window.
func (m *Monitor) LogDatabaseErrorSpike(ctx context.Context, errorCount int, window time.Duration) {
	m.LogSecurityEvent(ctx, EventDatabaseErrorSpike, SeverityCritical,
		fmt.Sprintf("%d database errors in %s", errorCount, window),
		WithMetadata(map[string]any{"error_count": errorCount, "window": window.String()}),
	)
}

// LogRateLimitExceeded records a rate limit denial.
func (m *Monitor) LogRateLimitExceeded(ctx context.Context, req requestcontext.Descriptor, category string, limit int) {
	m.LogSecurityEvent(ctx, EventRateLimitExceeded, SeverityMedium,
		fmt.Sprintf("rate limit exceeded for category %s", category),
		WithRequest(req),
		WithMetadata(map[string]any{"category": category, "limit": limit}),
	)
}

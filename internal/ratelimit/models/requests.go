package models

import (
	"strings"

	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
	"github.com/khaleddesign/chantierpro-sub001/pkg/validation"
)

// ResetRequest targets one counter. Identity may be given directly or
// derived from the address and user agent the client was seen with.
type ResetRequest struct {
	Identity  string `json:"identity" validate:"omitempty,max=512"`
	IP        string `json:"ip" validate:"omitempty,max=64"`
	UserAgent string `json:"user_agent" validate:"omitempty,max=1024"`
	Category  string `json:"category" validate:"required,oneof=auth upload read write financial default"`
}

func (r *ResetRequest) Normalize() {
	if r == nil {
		return
	}
	r.Identity = strings.TrimSpace(r.Identity)
	r.IP = strings.TrimSpace(r.IP)
	r.Category = strings.TrimSpace(strings.ToLower(r.Category))
}

func (r *ResetRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	r.Normalize()
	if err := validation.Validate(r); err != nil {
		return err
	}
	if r.Identity == "" && r.IP == "" {
		return dErrors.New(dErrors.CodeValidation, "identity or ip is required")
	}
	return nil
}

// ResolvedIdentity returns the identity to act on.
func (r *ResetRequest) ResolvedIdentity() string {
	if r.Identity != "" {
		return r.Identity
	}
	return DeriveIdentity(r.IP, "", r.UserAgent)
}

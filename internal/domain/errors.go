package domain

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies why an analysis or transcode could not complete.
type FailureKind string

const (
	MissingCredential     FailureKind = "MissingCredential"
	MaskedCredential      FailureKind = "MaskedCredential"
	ImplausibleCredential FailureKind = "ImplausibleCredential"
	AuthFailure           FailureKind = "AuthFailure"
	RateLimited           FailureKind = "RateLimited"
	InsufficientCredit    FailureKind = "InsufficientCredit"
	ModelNotFound         FailureKind = "ModelNotFound"
	BadRequest            FailureKind = "BadRequest"
	UpstreamError         FailureKind = "UpstreamError"
	ConnectivityFailure   FailureKind = "ConnectivityFailure"
	MalformedResponse     FailureKind = "MalformedResponse"
	ContentBlocked        FailureKind = "ContentBlocked"
	NoAudioTrack          FailureKind = "NoAudioTrack"
	DecodeFailure         FailureKind = "DecodeFailure"
	NoProviderAvailable   FailureKind = "NoProviderAvailable"
)

// Failure is a classified, recoverable failure with a human-readable detail.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail"`
}

// NewFailure builds a Failure with a formatted detail.
func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// Is matches another *Failure of the same kind, so errors.Is works with
// sentinel-style values such as &Failure{Kind: RateLimited}.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Kind == f.Kind
}

// IsKind reports whether err carries a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// AsFailure maps err onto the taxonomy. Unclassified errors become fallback.
func AsFailure(err error, fallback FailureKind) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: ConnectivityFailure, Detail: err.Error()}
	}
	return &Failure{Kind: fallback, Detail: err.Error()}
}

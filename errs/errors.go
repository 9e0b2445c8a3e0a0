// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package errs defines the Alpenglow error taxonomy (spec §7), shared by
// every component so callers can use errors.Is/errors.As uniformly instead
// of matching on strings.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that don't need an offending action
// attached.
var (
	// ErrActionNotEnabled is returned when a requested action is not
	// enabled in the given state.
	ErrActionNotEnabled = errors.New("action not enabled")

	// ErrNoDeliverableMessage is returned by network.Deliver when no
	// queued message currently satisfies the delivery predicate.
	ErrNoDeliverableMessage = errors.New("no deliverable message")

	// ErrNothingToHeal is returned by network.HealPartition when no
	// partition is eligible to heal yet.
	ErrNothingToHeal = errors.New("no partition eligible to heal")
)

// InvalidConfig reports a rejected configuration (spec §4.1, §7).
type InvalidConfig struct{ Msg string }

func (e *InvalidConfig) Error() string { return "invalid config: " + e.Msg }

// NewInvalidConfig builds an *InvalidConfig with a formatted message.
func NewInvalidConfig(format string, args ...any) error {
	return &InvalidConfig{Msg: fmt.Sprintf(format, args...)}
}

// ProtocolViolation reports an action whose precondition held but whose
// execution would violate a protocol invariant (spec §7).
type ProtocolViolation struct{ Msg string }

func (e *ProtocolViolation) Error() string { return "protocol violation: " + e.Msg }

// NewProtocolViolation builds a *ProtocolViolation with a formatted message.
func NewProtocolViolation(format string, args ...any) error {
	return &ProtocolViolation{Msg: fmt.Sprintf(format, args...)}
}

// NetworkError reports a network-layer precondition failure (spec §7).
type NetworkError struct{ Msg string }

func (e *NetworkError) Error() string { return "network error: " + e.Msg }

// NewNetworkError builds a *NetworkError with a formatted message.
func NewNetworkError(format string, args ...any) error {
	return &NetworkError{Msg: fmt.Sprintf(format, args...)}
}

// ByzantineDetected reports an attempt to run a Byzantine-only operation
// from an honest validator (spec §7).
type ByzantineDetected struct{ Msg string }

func (e *ByzantineDetected) Error() string { return "byzantine detected: " + e.Msg }

// NewByzantineDetected builds a *ByzantineDetected with a formatted message.
func NewByzantineDetected(format string, args ...any) error {
	return &ByzantineDetected{Msg: fmt.Sprintf(format, args...)}
}

// TimeoutErr reports a repair request that exceeded its retry budget
// (spec §7, §4.3 failure semantics). Named TimeoutErr to avoid shadowing
// the common "Timeout" identifier used elsewhere for durations.
type TimeoutErr struct{ Msg string }

func (e *TimeoutErr) Error() string { return "timeout: " + e.Msg }

// NewTimeout builds a *TimeoutErr with a formatted message.
func NewTimeout(format string, args ...any) error {
	return &TimeoutErr{Msg: fmt.Sprintf(format, args...)}
}

// Other is the catch-all error kind (spec §7).
type Other struct{ Msg string }

func (e *Other) Error() string { return e.Msg }

// NewOther builds an *Other with a formatted message.
func NewOther(format string, args ...any) error {
	return &Other{Msg: fmt.Sprintf(format, args...)}
}

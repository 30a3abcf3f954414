// Package fleet runs per-node operations across the whole node set and
// aggregates their outcomes.
//
// Every operation on a node terminates in exactly one Status. Statuses are
// ordered by severity so a whole command's result is simply the worst
// status any node produced.
package fleet

import (
	"errors"
	"fmt"
)

// Status classifies the outcome of one node's pipeline, or of the command
// as a whole. The zero value is OK. Order matters: higher values are worse,
// and Worst picks the maximum.
type Status int

const (
	OK Status = iota

	// PartialServiceFailure is a warning, not a failure: some services did
	// not come up cleanly after activation but the new generation is live.
	PartialServiceFailure

	// Fatal statuses. Everything from WrongUsage on halts the node's
	// remaining pipeline stages.
	WrongUsage
	NoDeployFile
	NoInputFile
	NoSuchInstance
	NoSuchConfig
	InvalidProvisioner
	RefusedDryBootstrap
	HostUnreachable
	HostNotManaged
	MissingBootstrapFiles
	BuildFailed
	InvalidArtifact
	TransferFailedLocal
	TransferFailedBundle
	TransferFailedRemote
	SecretsPushFailed
	RebootRequired
	HostUnreachableAfterReboot
)

var statusNames = map[Status]string{
	OK:                         "ok",
	PartialServiceFailure:      "partial service failure",
	WrongUsage:                 "wrong usage",
	NoDeployFile:               "no deploy file",
	NoInputFile:                "no input file",
	NoSuchInstance:             "no such instance",
	NoSuchConfig:               "no such config",
	InvalidProvisioner:         "invalid provisioner",
	RefusedDryBootstrap:        "refused bootstrap in dry run",
	HostUnreachable:            "host unreachable",
	HostNotManaged:             "host not managed",
	MissingBootstrapFiles:      "missing bootstrap files",
	BuildFailed:                "build failed",
	InvalidArtifact:            "invalid artifact",
	TransferFailedLocal:        "transfer failed (local realize)",
	TransferFailedBundle:       "transfer failed (bundle)",
	TransferFailedRemote:       "transfer failed (remote realize)",
	SecretsPushFailed:          "secrets push failed",
	RebootRequired:             "reboot required",
	HostUnreachableAfterReboot: "host unreachable after reboot",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Fatal reports whether the status halts a node's remaining pipeline stages.
func (s Status) Fatal() bool {
	return s >= WrongUsage
}

// ExitCode maps the status to the process exit code. OK and warnings exit
// zero; fatal statuses get stable non-zero codes.
func (s Status) ExitCode() int {
	if !s.Fatal() {
		return 0
	}
	return int(s)
}

// Worst returns the most severe status across all per-node results.
// An empty result set is OK.
func Worst(results map[string]Status) Status {
	worst := OK
	for _, s := range results {
		if s > worst {
			worst = s
		}
	}
	return worst
}

// Error carries a Status alongside a wrapped cause so component boundaries
// can classify failures without losing the underlying error chain.
type Error struct {
	Status Status
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %v", e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error in fmt.Errorf style.
func Errorf(status Status, format string, args ...any) error {
	return &Error{Status: status, Err: fmt.Errorf(format, args...)}
}

// Classify wraps err with the given status, preserving an existing
// classification if one is already present in the chain.
func Classify(status Status, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Status: status, Err: err}
}

// StatusOf extracts the status from an error chain. A nil error is OK; an
// unclassified error maps to the caller-supplied fallback.
func StatusOf(err error, fallback Status) Status {
	if err == nil {
		return OK
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return fallback
}

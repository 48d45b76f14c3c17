// Package verify runs the per-frame verification pipeline: decode the
// scanned credential, look it up in the registry, then confirm a live
// subject is present. One Evaluate call produces one Verdict.
package verify

import "github.com/ferrovax/gatehouse/internal/registry"

// Kind enumerates the possible outcomes of one verification cycle.
type Kind int

const (
	// NoCredential means no scannable code was found in the frame.
	NoCredential Kind = iota
	// CredentialUnknown means a code was decoded but is not registered.
	CredentialUnknown
	// LivenessFailed means the credential is registered but no live
	// subject was confirmed in the same frame.
	LivenessFailed
	// Verified means credential and liveness both checked out.
	Verified
)

// String returns the verdict kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case NoCredential:
		return "no_credential"
	case CredentialUnknown:
		return "credential_unknown"
	case LivenessFailed:
		return "liveness_failed"
	case Verified:
		return "verified"
	default:
		return "unknown"
	}
}

// Verdict is the immutable outcome of evaluating a single frame. Entry is
// set only when Kind is Verified; Credential is set whenever a code was
// decoded. Verdicts are never retained past the cycle that produced them.
type Verdict struct {
	Kind       Kind
	Credential string
	Entry      *registry.Entry
}

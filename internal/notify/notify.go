// Package notify resolves the registered push endpoints of a report owner,
// performs a single multicast send, and triages per-endpoint outcomes. Tokens
// the delivery backend reports as permanently invalid are pruned from the
// registry; every other failure is logged and absorbed.
package notify

import "context"

// Failure codes reported by a MulticastSender for one endpoint token.
const (
	FailureCodeUnregistered    = "unregistered"
	FailureCodeInvalidToken    = "invalid-token"
	FailureCodeInvalidArgument = "invalid-argument"
	FailureCodeUnknown         = "unknown"
)

// PlatformHints are attached uniformly to every recipient of one send; the
// dispatcher does not customize hints per endpoint.
type PlatformHints struct {
	Sound    string
	Badge    int
	Priority string
}

// Message is one multicast request addressed to many endpoint tokens.
type Message struct {
	Title  string
	Body   string
	Data   map[string]string
	Tokens []string
	Hints  PlatformHints
}

// Outcome reports the delivery result for a single endpoint token. The
// outcome at index i always corresponds to Message.Tokens[i].
type Outcome struct {
	Delivered   bool
	FailureCode string
}

// EndpointRegistry supplies and prunes endpoint tokens per owner.
type EndpointRegistry interface {
	ListByOwner(ctx context.Context, ownerID string) ([]string, error)
	Delete(ctx context.Context, token string) (bool, error)
}

// MulticastSender is the black-box push-delivery backend.
type MulticastSender interface {
	Send(ctx context.Context, msg Message) ([]Outcome, error)
}

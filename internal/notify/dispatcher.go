package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	errMissingRegistry = errors.New("endpoint registry is required")
	errMissingSender   = errors.New("multicast sender is required")
	noOpLogger         = zap.NewNop()
)

const opNotify = "notify.dispatch"

// permanentFailureCodes lists backend classifications after which a token will
// never succeed again and must be pruned.
var permanentFailureCodes = map[string]struct{}{
	FailureCodeUnregistered:    {},
	FailureCodeInvalidToken:    {},
	FailureCodeInvalidArgument: {},
}

func isPermanentFailure(code string) bool {
	_, ok := permanentFailureCodes[code]
	return ok
}

var defaultHints = PlatformHints{
	Sound:    "default",
	Badge:    1,
	Priority: "high",
}

// DispatcherConfig describes the collaborators required for dispatch.
type DispatcherConfig struct {
	Registry EndpointRegistry
	Sender   MulticastSender
	Hints    *PlatformHints
	Logger   *zap.Logger
}

// Dispatcher performs best-effort multicast notification with per-token triage.
type Dispatcher struct {
	registry EndpointRegistry
	sender   MulticastSender
	hints    PlatformHints
	logger   *zap.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%s.missing_registry: %w", opNotify, errMissingRegistry)
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("%s.missing_sender: %w", opNotify, errMissingSender)
	}
	hints := defaultHints
	if cfg.Hints != nil {
		hints = *cfg.Hints
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Dispatcher{
		registry: cfg.Registry,
		sender:   cfg.Sender,
		hints:    hints,
		logger:   logger,
	}, nil
}

// Notify resolves every endpoint registered for the owner, multicasts the
// message once, classifies each per-token outcome and prunes permanently
// invalid tokens. It reports whether every endpoint was delivered to; all
// collaborator faults are absorbed into a false result.
func (d *Dispatcher) Notify(ctx context.Context, ownerID, title, body string, data map[string]string) bool {
	tokens, err := d.registry.ListByOwner(ctx, ownerID)
	if err != nil {
		d.logger.Error("endpoint lookup failed",
			zap.String("operation", opNotify),
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return false
	}
	if len(tokens) == 0 {
		d.logger.Warn("no endpoints registered for owner",
			zap.String("operation", opNotify),
			zap.String("owner_id", ownerID))
		return false
	}

	outcomes, err := d.sender.Send(ctx, Message{
		Title:  title,
		Body:   body,
		Data:   data,
		Tokens: tokens,
		Hints:  d.hints,
	})
	if err != nil {
		d.logger.Error("multicast send failed",
			zap.String("operation", opNotify),
			zap.String("owner_id", ownerID),
			zap.Int("token_count", len(tokens)),
			zap.Error(err))
		return false
	}

	allDelivered := len(outcomes) == len(tokens)
	if len(outcomes) != len(tokens) {
		d.logger.Error("outcome count does not match token count",
			zap.String("operation", opNotify),
			zap.Int("tokens", len(tokens)),
			zap.Int("outcomes", len(outcomes)))
	}

	for i, outcome := range outcomes {
		if i >= len(tokens) {
			break
		}
		token := tokens[i]
		if outcome.Delivered {
			d.logger.Debug("notification delivered",
				zap.String("owner_id", ownerID),
				zap.String("token_prefix", tokenPrefix(token)))
			continue
		}
		allDelivered = false
		d.triageFailure(ctx, ownerID, token, outcome.FailureCode)
	}

	return allDelivered
}

// triageFailure handles one failed endpoint independently of the rest: a
// permanently invalid token is deleted best-effort, anything else is logged.
func (d *Dispatcher) triageFailure(ctx context.Context, ownerID, token, code string) {
	if !isPermanentFailure(code) {
		d.logger.Error("unhandled delivery failure",
			zap.String("operation", opNotify),
			zap.String("owner_id", ownerID),
			zap.String("token_prefix", tokenPrefix(token)),
			zap.String("failure_code", code))
		return
	}

	d.logger.Warn("pruning permanently invalid endpoint",
		zap.String("operation", opNotify),
		zap.String("owner_id", ownerID),
		zap.String("token_prefix", tokenPrefix(token)),
		zap.String("failure_code", code))

	deleted, err := d.registry.Delete(ctx, token)
	if err != nil {
		d.logger.Error("endpoint deletion failed",
			zap.String("operation", opNotify),
			zap.String("token_prefix", tokenPrefix(token)),
			zap.Error(err))
		return
	}
	if !deleted {
		d.logger.Debug("endpoint already removed",
			zap.String("operation", opNotify),
			zap.String("token_prefix", tokenPrefix(token)))
	}
}

func tokenPrefix(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10]
}

package notify

import (
	"context"
	"errors"
	"testing"
)

type fakeRegistry struct {
	tokens      []string
	listErr     error
	deleteErr   error
	deleted     []string
	deleteCalls int
}

func (r *fakeRegistry) ListByOwner(_ context.Context, _ string) ([]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.tokens, nil
}

func (r *fakeRegistry) Delete(_ context.Context, token string) (bool, error) {
	r.deleteCalls++
	if r.deleteErr != nil {
		return false, r.deleteErr
	}
	r.deleted = append(r.deleted, token)
	return true, nil
}

type fakeSender struct {
	outcomes  []Outcome
	sendErr   error
	sendCalls int
	lastMsg   Message
}

func (s *fakeSender) Send(_ context.Context, msg Message) ([]Outcome, error) {
	s.sendCalls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	return s.outcomes, nil
}

func newTestDispatcher(t *testing.T, registry *fakeRegistry, sender *fakeSender) *Dispatcher {
	t.Helper()
	dispatcher, err := NewDispatcher(DispatcherConfig{Registry: registry, Sender: sender})
	if err != nil {
		t.Fatalf("unexpected dispatcher error: %v", err)
	}
	return dispatcher
}

func TestNotifyDeletesOnlyPermanentlyInvalidTokens(t *testing.T) {
	registry := &fakeRegistry{tokens: []string{"token-ok", "token-gone", "token-flaky"}}
	sender := &fakeSender{outcomes: []Outcome{
		{Delivered: true},
		{FailureCode: FailureCodeUnregistered},
		{FailureCode: FailureCodeUnknown},
	}}
	dispatcher := newTestDispatcher(t, registry, sender)

	allDelivered := dispatcher.Notify(context.Background(), "owner-1", "title", "body", nil)

	if allDelivered {
		t.Fatalf("expected allDelivered=false with failures present")
	}
	if registry.deleteCalls != 1 {
		t.Fatalf("expected exactly one delete call, got %d", registry.deleteCalls)
	}
	if len(registry.deleted) != 1 || registry.deleted[0] != "token-gone" {
		t.Fatalf("expected token-gone to be deleted, got %v", registry.deleted)
	}
}

func TestNotifyWithZeroEndpointsSkipsSend(t *testing.T) {
	registry := &fakeRegistry{tokens: nil}
	sender := &fakeSender{}
	dispatcher := newTestDispatcher(t, registry, sender)

	if dispatcher.Notify(context.Background(), "owner-1", "title", "body", nil) {
		t.Fatalf("expected allDelivered=false with no endpoints")
	}
	if sender.sendCalls != 0 {
		t.Fatalf("send must not be attempted with zero endpoints, got %d calls", sender.sendCalls)
	}
}

func TestNotifyAbortsOnLookupError(t *testing.T) {
	registry := &fakeRegistry{listErr: errors.New("registry unreachable")}
	sender := &fakeSender{}
	dispatcher := newTestDispatcher(t, registry, sender)

	if dispatcher.Notify(context.Background(), "owner-1", "title", "body", nil) {
		t.Fatalf("expected allDelivered=false on lookup error")
	}
	if sender.sendCalls != 0 {
		t.Fatalf("send must not be attempted after lookup error")
	}
}

func TestNotifyAbsorbsSendError(t *testing.T) {
	registry := &fakeRegistry{tokens: []string{"token-a"}}
	sender := &fakeSender{sendErr: errors.New("backend unreachable")}
	dispatcher := newTestDispatcher(t, registry, sender)

	if dispatcher.Notify(context.Background(), "owner-1", "title", "body", nil) {
		t.Fatalf("expected allDelivered=false on send error")
	}
	if registry.deleteCalls != 0 {
		t.Fatalf("no deletion may happen without per-token outcomes")
	}
}

func TestNotifySwallowsDeletionFailure(t *testing.T) {
	registry := &fakeRegistry{
		tokens:    []string{"token-ok", "token-gone"},
		deleteErr: errors.New("delete failed"),
	}
	sender := &fakeSender{outcomes: []Outcome{
		{Delivered: true},
		{FailureCode: FailureCodeInvalidToken},
	}}
	dispatcher := newTestDispatcher(t, registry, sender)

	if dispatcher.Notify(context.Background(), "owner-1", "title", "body", nil) {
		t.Fatalf("expected allDelivered=false with one failed token")
	}
	if registry.deleteCalls != 1 {
		t.Fatalf("expected deletion to be attempted once, got %d", registry.deleteCalls)
	}
}

func TestNotifyAllDelivered(t *testing.T) {
	registry := &fakeRegistry{tokens: []string{"token-a", "token-b"}}
	sender := &fakeSender{outcomes: []Outcome{{Delivered: true}, {Delivered: true}}}
	dispatcher := newTestDispatcher(t, registry, sender)

	data := map[string]string{"kind": "QUOTATION_READY"}
	if !dispatcher.Notify(context.Background(), "owner-1", "title", "body", data) {
		t.Fatalf("expected allDelivered=true")
	}
	if sender.lastMsg.Hints.Sound != "default" || sender.lastMsg.Hints.Badge != 1 || sender.lastMsg.Hints.Priority != "high" {
		t.Fatalf("expected default platform hints, got %+v", sender.lastMsg.Hints)
	}
	if len(sender.lastMsg.Tokens) != 2 {
		t.Fatalf("expected both tokens in one multicast, got %v", sender.lastMsg.Tokens)
	}
	if sender.lastMsg.Data["kind"] != "QUOTATION_READY" {
		t.Fatalf("expected data payload to pass through, got %v", sender.lastMsg.Data)
	}
}

func TestFailureClassification(t *testing.T) {
	permanent := []string{FailureCodeUnregistered, FailureCodeInvalidToken, FailureCodeInvalidArgument}
	for _, code := range permanent {
		if !isPermanentFailure(code) {
			t.Fatalf("expected %q to classify as permanent", code)
		}
	}
	if isPermanentFailure(FailureCodeUnknown) {
		t.Fatalf("unknown code must not classify as permanent")
	}
	if isPermanentFailure("") {
		t.Fatalf("empty code must not classify as permanent")
	}
}

package unit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	pollengine "plebiscite/contexts/governance/poll-engine"
	"plebiscite/contexts/governance/poll-engine/application/dispatch"
	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
)

const feeTx = `{"payer":"creator","inputs":[{"amount":5}]}`

func newDispatcher(t *testing.T) (pollengine.Module, func(int64)) {
	t.Helper()
	return newEngine(t)
}

func dispatchRaw(t *testing.T, module pollengine.Module, raw string) dispatch.Outcome {
	t.Helper()
	return module.Dispatcher.Dispatch(context.Background(), []byte(raw))
}

func createPollEnvelope() string {
	return fmt.Sprintf(`{
		"kind": "create_poll",
		"caller": "creator",
		"fee_tx": %s,
		"payload": {
			"title": "favorite color",
			"options": ["red", "blue"],
			"start_time": %d,
			"end_time": %d
		}
	}`, feeTx, baseTime+100, baseTime+1000)
}

func TestDispatchCreatePollAndCastVote(t *testing.T) {
	module, setNow := newDispatcher(t)

	outcome := dispatchRaw(t, module, createPollEnvelope())
	if outcome.Code != 0 {
		t.Fatalf("create poll failed: %+v", outcome)
	}

	setNow(baseTime + 200)
	castRaw := `{
		"kind": "cast_vote",
		"caller": "amy",
		"fee_tx": {"payer":"amy","inputs":[{"amount":5}]},
		"payload": {"poll_id": 1, "option_index": 1}
	}`
	outcome = dispatchRaw(t, module, castRaw)
	if outcome.Code != 0 {
		t.Fatalf("cast vote failed: %+v", outcome)
	}

	outcome = dispatchRaw(t, module, `{"kind": "get_results", "caller": "anyone", "payload": {"poll_id": 1}}`)
	if outcome.Code != 0 {
		t.Fatalf("get results failed: %+v", outcome)
	}
}

func TestDispatchSurfacesStableErrorCodes(t *testing.T) {
	module, setNow := newDispatcher(t)

	if outcome := dispatchRaw(t, module, createPollEnvelope()); outcome.Code != 0 {
		t.Fatalf("create poll failed: %+v", outcome)
	}

	setNow(baseTime + 200)
	castRaw := `{
		"kind": "cast_vote",
		"caller": "amy",
		"fee_tx": {"payer":"amy","inputs":[{"amount":5}]},
		"payload": {"poll_id": 1, "option_index": 0}
	}`
	if outcome := dispatchRaw(t, module, castRaw); outcome.Code != 0 {
		t.Fatalf("first cast failed: %+v", outcome)
	}
	outcome := dispatchRaw(t, module, castRaw)
	if outcome.Code != 1008 {
		t.Fatalf("double vote should surface code 1008, got %+v", outcome)
	}

	missingRaw := `{
		"kind": "cast_vote",
		"caller": "bob",
		"fee_tx": {"payer":"bob","inputs":[{"amount":5}]},
		"payload": {"poll_id": 42, "option_index": 0}
	}`
	outcome = dispatchRaw(t, module, missingRaw)
	if outcome.Code != 1003 {
		t.Fatalf("missing poll should surface code 1003, got %+v", outcome)
	}
}

func TestDispatchRequiresFeeOnMutatingKinds(t *testing.T) {
	module, _ := newDispatcher(t)

	want := domainerrors.Code(domainerrors.ErrInvalidFeeTransaction)
	for kind, payload := range map[string]string{
		"create_poll":          `{"title": "t", "options": ["a", "b"]}`,
		"cast_vote":            `{"poll_id": 1, "option_index": 0}`,
		"change_vote":          `{"poll_id": 1, "new_option_index": 1}`,
		"close_poll":           `{"poll_id": 1}`,
		"decrypt_results":      `{"poll_id": 1, "decryption_key": "AAAA"}`,
		"delegate_vote":        `{"delegate": "bob"}`,
		"revoke_delegation":    `{"delegation_id": 1}`,
		"update_token_balance": `{"token": "vote", "amount": 1}`,
	} {
		raw := fmt.Sprintf(`{"kind": %q, "caller": "amy", "payload": %s}`, kind, payload)
		outcome := dispatchRaw(t, module, raw)
		if outcome.Code != want {
			t.Fatalf("%s without a fee should surface code %d, got %+v", kind, want, outcome)
		}
	}

	// Cancellation stays free; the fee layer never sees it.
	if outcome := dispatchRaw(t, module, `{"kind": "cancel_poll", "caller": "amy", "payload": {"poll_id": 1}}`); outcome.Code == want {
		t.Fatalf("cancel_poll must not require a fee, got %+v", outcome)
	}
}

func TestDispatchRejectsMalformedEnvelope(t *testing.T) {
	module, _ := newDispatcher(t)

	for name, raw := range map[string]string{
		"not json":       "garbage",
		"missing caller": `{"kind": "get_results", "payload": {"poll_id": 1}}`,
		"bad caller":     `{"kind": "get_results", "caller": "0xdead", "payload": {"poll_id": 1}}`,
		"unknown kind":   `{"kind": "explode", "caller": "amy", "payload": {}}`,
		"no payload":     `{"kind": "get_results", "caller": "amy"}`,
	} {
		outcome := dispatchRaw(t, module, raw)
		if outcome.Code != domainerrors.CodeInternal {
			t.Fatalf("%s: expected internal code, got %+v", name, outcome)
		}
	}
}

func TestDispatchAcceptsEncodedKeyCallers(t *testing.T) {
	module, _ := newDispatcher(t)

	caller := entities.IdentityFromBytes(bytes.Repeat([]byte{0x7f}, 32))
	raw := fmt.Sprintf(`{"kind": "get_results", "caller": %q, "payload": {"poll_id": 9}}`, caller)
	outcome := dispatchRaw(t, module, raw)
	if outcome.Code != 1003 {
		t.Fatalf("encoded caller should reach the use case, got %+v", outcome)
	}
}

func TestDispatchDelegationFlow(t *testing.T) {
	module, setNow := newDispatcher(t)

	createRaw := fmt.Sprintf(`{
		"kind": "create_poll",
		"caller": "creator",
		"fee_tx": %s,
		"payload": {
			"title": "favorite color",
			"options": ["red", "blue"],
			"start_time": %d,
			"end_time": %d,
			"allow_delegation": true
		}
	}`, feeTx, baseTime+100, baseTime+1000)
	if outcome := dispatchRaw(t, module, createRaw); outcome.Code != 0 {
		t.Fatalf("create poll failed: %+v", outcome)
	}

	delegateRaw := `{
		"kind": "delegate_vote",
		"caller": "amy",
		"fee_tx": {"payer":"amy","inputs":[{"amount":5}]},
		"payload": {"delegate": "bob"}
	}`
	outcome := dispatchRaw(t, module, delegateRaw)
	if outcome.Code != 0 {
		t.Fatalf("delegate failed: %+v", outcome)
	}
	grantJSON, err := json.Marshal(outcome.Result)
	if err != nil {
		t.Fatalf("marshal grant failed: %v", err)
	}
	var grant struct {
		ID uint64 `json:"ID"`
	}
	if err := json.Unmarshal(grantJSON, &grant); err != nil {
		t.Fatalf("unmarshal grant failed: %v", err)
	}
	if grant.ID == 0 {
		t.Fatalf("grant id missing from outcome: %s", grantJSON)
	}

	setNow(baseTime + 200)
	castRaw := fmt.Sprintf(`{
		"kind": "cast_vote",
		"caller": "bob",
		"fee_tx": {"payer":"bob","inputs":[{"amount":5}]},
		"payload": {"poll_id": 1, "option_index": 0, "delegation_id": %d}
	}`, grant.ID)
	if outcome := dispatchRaw(t, module, castRaw); outcome.Code != 0 {
		t.Fatalf("delegated cast failed: %+v", outcome)
	}

	revokeRaw := fmt.Sprintf(`{
		"kind": "revoke_delegation",
		"caller": "amy",
		"fee_tx": {"payer":"amy","inputs":[{"amount":5}]},
		"payload": {"delegation_id": %d}
	}`, grant.ID)
	if outcome := dispatchRaw(t, module, revokeRaw); outcome.Code != 0 {
		t.Fatalf("revoke failed: %+v", outcome)
	}
}

func TestDispatchUpdateTokenBalance(t *testing.T) {
	module, _ := newDispatcher(t)

	outcome := dispatchRaw(t, module, `{
		"kind": "update_token_balance",
		"caller": "amy",
		"fee_tx": {"payer":"amy","inputs":[{"amount":5}]},
		"payload": {"token": "vote", "amount": 500}
	}`)
	if outcome.Code != 0 {
		t.Fatalf("balance update failed: %+v", outcome)
	}
}

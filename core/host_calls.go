// Host-call table — the zome-facing API surface wired into the WASM
// runtime's import namespace, each function closing over the owning
// Instance so guest code can commit entries, read the chain, and walk
// links without any of that state being reachable from outside a
// running call.
package core

import (
	"context"
	"encoding/json"
)

// NewDefaultHostTable builds the fixed host-call table a zome call may
// invoke, bound to inst.
func NewDefaultHostTable(inst *Instance) HostTable {
	return HostTable{
		"hc_commit_entry":             inst.hostCommitEntry,
		"hc_get_entry":                inst.hostGetEntry,
		"hc_link_entries":             inst.hostLinkEntries,
		"hc_get_links":                inst.hostGetLinks,
		"hc_query":                    inst.hostQuery,
		"hc_debug":                    inst.hostDebug,
		"hc_call":                     inst.hostCall,
		"hc_send":                     inst.hostSend,
		"hc_sign_one_time":            inst.hostSignOneTime,
		"hc_commit_capability_grant":  inst.hostCommitCapabilityGrant,
	}
}

type commitEntryInput struct {
	AppType string `json:"app_type"`
	Payload []byte `json:"payload"`
}

func (inst *Instance) hostCommitEntry(ctx context.Context, input []byte) ([]byte, error) {
	var in commitEntryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, NewError(KindSerialization, "hc_commit_entry", err)
	}
	addr, err := inst.CommitAppEntry(ctx, in.AppType, in.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Address Address `json:"address"`
	}{addr})
}

func (inst *Instance) hostGetEntry(ctx context.Context, input []byte) ([]byte, error) {
	var addr Address
	if err := json.Unmarshal(input, &addr); err != nil {
		return nil, NewError(KindSerialization, "hc_get_entry", err)
	}
	aspects, err := inst.HandleFetchEntry(ctx, addr)
	if err != nil {
		return nil, err
	}
	return json.Marshal(aspects)
}

type linkEntriesInput struct {
	Base     Address `json:"base"`
	Target   Address `json:"target"`
	LinkType string  `json:"link_type"`
	Tag      string  `json:"tag"`
	Remove   bool    `json:"remove"`
}

func (inst *Instance) hostLinkEntries(ctx context.Context, input []byte) ([]byte, error) {
	var in linkEntriesInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, NewError(KindSerialization, "hc_link_entries", err)
	}
	ld := LinkData{Base: in.Base, Target: in.Target, LinkType: in.LinkType, Tag: in.Tag}
	var (
		addr Address
		err  error
	)
	if in.Remove {
		addr, err = inst.CommitLinkRemove(ctx, ld)
	} else {
		addr, err = inst.CommitLinkAdd(ctx, ld)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Address Address `json:"address"`
	}{addr})
}

func (inst *Instance) hostGetLinks(ctx context.Context, input []byte) ([]byte, error) {
	var w LinkQueryWire
	if err := json.Unmarshal(input, &w); err != nil {
		return nil, NewError(KindSerialization, "hc_get_links", err)
	}
	results, err := inst.DHT.GetLinks(w.toLinkQuery())
	if err != nil {
		return nil, err
	}
	return json.Marshal(results)
}

func (inst *Instance) hostQuery(ctx context.Context, input []byte) ([]byte, error) {
	var w LinkQueryWire
	if err := json.Unmarshal(input, &w); err != nil {
		return nil, NewError(KindSerialization, "hc_query", err)
	}
	return inst.hostGetLinks(ctx, input)
}

func (inst *Instance) hostDebug(_ context.Context, input []byte) ([]byte, error) {
	inst.Log.Sugar().Debugf("zome debug: %s", string(input))
	return []byte("null"), nil
}

type bridgeCallInput struct {
	InstanceHandle string          `json:"instance_handle"`
	ZomeName       string          `json:"zome_name"`
	FnName         string          `json:"fn_name"`
	Parameters     json.RawMessage `json:"parameters"`
}

func (inst *Instance) hostCall(ctx context.Context, input []byte) ([]byte, error) {
	var in bridgeCallInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, NewError(KindSerialization, "hc_call", err)
	}
	out, err := inst.Dispatcher.Call(ctx, ZomeFnCall{
		InstanceHandle: in.InstanceHandle,
		ZomeName:       in.ZomeName,
		FnName:         in.FnName,
		Parameters:     in.Parameters,
		Cap:            CapabilityRequest{CapToken: inst.Agent, CallerAddress: inst.Agent},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type sendInput struct {
	To      Address `json:"to"`
	Payload []byte  `json:"payload"`
}

func (inst *Instance) hostSend(ctx context.Context, input []byte) ([]byte, error) {
	var in sendInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, NewError(KindSerialization, "hc_send", err)
	}
	if inst.Network == nil {
		return nil, NewError(KindLifecycle, "hc_send", nil)
	}
	out, err := inst.Network.SendDirectMessage(ctx, inst.Agent, in.To, in.Payload, 0)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Payload []byte `json:"payload"`
	}{out})
}

func (inst *Instance) hostSignOneTime(ctx context.Context, input []byte) ([]byte, error) {
	sig, err := inst.Keystore.Sign(ctx, input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Signature []byte `json:"signature"`
	}{sig})
}

type commitGrantInput struct {
	ID        string              `json:"id"`
	CapType   CapabilityType      `json:"cap_type"`
	Assignees []Address           `json:"assignees,omitempty"`
	Functions map[string][]string `json:"functions"`
}

func (inst *Instance) hostCommitCapabilityGrant(ctx context.Context, input []byte) ([]byte, error) {
	var in commitGrantInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, NewError(KindSerialization, "hc_commit_capability_grant", err)
	}
	grant := CapTokenGrant{ID: in.ID, CapType: in.CapType, Assignees: in.Assignees, Functions: in.Functions}
	token, err := inst.CommitCapabilityGrant(ctx, grant)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Token Address `json:"token"`
	}{token})
}

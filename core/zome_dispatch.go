// Zome Call Dispatcher — capability-checked entry point for zome
// function calls, generalized from a ContractRegistry.Invoke dispatch
// into a capability-token-mediated dispatch pipeline.
package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// ThisInstance is the sentinel instance_handle naming a local call, as
// opposed to a bridge call forwarded to another instance.
const ThisInstance = "THIS_INSTANCE"

// ZomeFnCall is one inbound zome-call request.
type ZomeFnCall struct {
	InstanceHandle string            `json:"instance_handle"`
	ZomeName       string            `json:"zome_name"`
	FnName         string            `json:"fn_name"`
	Parameters     json.RawMessage   `json:"parameters"`
	Cap            CapabilityRequest `json:"cap"`
}

// GrantLookup resolves a CapTokenGrant by its token address from the
// callee agent's own chain. Implemented by the instance over its Chain.
type GrantLookup interface {
	GrantByToken(token Address) (*CapTokenGrant, bool, error)
}

// CallerPublicKeyLookup resolves a caller's ed25519 public key from
// their agent address, needed to verify the capability signature.
type CallerPublicKeyLookup interface {
	PublicKeyForAgent(agent Address) (pubKey []byte, ok bool, err error)
}

// BridgeCaller forwards a call whose instance_handle names another
// local instance, via JSON-RPC to the conductor API.
type BridgeCaller interface {
	CallBridge(ctx context.Context, instanceHandle string, call ZomeFnCall) (json.RawMessage, error)
}

// ZomeDispatcher is the entry point every zome call is routed through.
type ZomeDispatcher struct {
	dna       *DNA
	agent     Address
	grants    GrantLookup
	pubKeys   CallerPublicKeyLookup
	bridge    BridgeCaller
	ribosome  Ribosome
}

// NewZomeDispatcher constructs a dispatcher for dna, acting as agent,
// resolving grants/public keys via the given lookups and executing
// local calls through ribosome.
func NewZomeDispatcher(dna *DNA, agent Address, grants GrantLookup, pubKeys CallerPublicKeyLookup, bridge BridgeCaller, ribosome Ribosome) *ZomeDispatcher {
	return &ZomeDispatcher{dna: dna, agent: agent, grants: grants, pubKeys: pubKeys, bridge: bridge, ribosome: ribosome}
}

// Call executes call end to end: DNA/function resolution, capability
// signature verification, capability check, and — for local calls —
// ribosome execution (bridge calls are forwarded instead). Failure at
// any pre-execution step returns CapabilityCheckFailed or DnaError
// without invoking the zome; a dispatcher with no ribosome wired returns
// a Lifecycle error.
func (d *ZomeDispatcher) Call(ctx context.Context, call ZomeFnCall) (json.RawMessage, error) {
	if call.InstanceHandle != "" && call.InstanceHandle != ThisInstance {
		if d.bridge == nil {
			return nil, NewError(KindDNA, "zome_call", fmt.Errorf("no bridge wired for instance %s", call.InstanceHandle))
		}
		return d.bridge.CallBridge(ctx, call.InstanceHandle, call)
	}

	zome, ok := d.dna.ZomeNamed(call.ZomeName)
	if !ok {
		return nil, NewError(KindDNA, "zome_call", fmt.Errorf("zome %s not declared", call.ZomeName))
	}
	if _, ok := zome.FnNamed(call.FnName); !ok {
		return nil, NewError(KindDNA, "zome_call", fmt.Errorf("function %s not declared in zome %s", call.FnName, call.ZomeName))
	}

	selfAuthored := call.Cap.CapToken == d.agent
	if !selfAuthored {
		if d.pubKeys == nil {
			return nil, NewError(KindCapabilityCheckFailed, "zome_call", fmt.Errorf("no public key lookup wired"))
		}
		pubRaw, ok, err := d.pubKeys.PublicKeyForAgent(call.Cap.CallerAddress)
		if err != nil {
			return nil, NewError(KindCapabilityCheckFailed, "zome_call", err)
		}
		if !ok {
			return nil, NewError(KindCapabilityCheckFailed, "zome_call", fmt.Errorf("unknown caller %s", call.Cap.CallerAddress))
		}
		if !VerifyCapabilityRequest(call.Cap, pubRaw, call.FnName, call.Parameters) {
			return nil, NewError(KindCapabilityCheckFailed, "zome_call", fmt.Errorf("invalid capability signature"))
		}
	}

	var grant *CapTokenGrant
	if !selfAuthored {
		if d.grants == nil {
			return nil, NewError(KindCapabilityCheckFailed, "zome_call", fmt.Errorf("no grant lookup wired"))
		}
		g, found, err := d.grants.GrantByToken(call.Cap.CapToken)
		if err != nil {
			return nil, NewError(KindCapabilityCheckFailed, "zome_call", err)
		}
		if !found {
			return nil, NewError(KindCapabilityCheckFailed, "zome_call", fmt.Errorf("no grant for token %s", call.Cap.CapToken))
		}
		grant = g
	}
	if err := CheckCapability(grant, call.ZomeName, call.FnName, call.Cap.CallerAddress, selfAuthored); err != nil {
		return nil, err
	}

	if d.ribosome == nil {
		return nil, NewError(KindLifecycle, "zome_call", fmt.Errorf("no ribosome wired"))
	}
	out, err := d.ribosome.CallZomeFunction(ctx, call.ZomeName, call.FnName, call.Parameters)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// WASM Runtime — the zome execution engine, built on wasmer-go, with
// sandbox-manager-style instantiate/execute wiring (NewSandboxManager/
// Execute) generalized from opcode-gas-metered contract execution into a
// single-i64-ABI host-call model.
package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/wasmerio/wasmer-go/wasmer"
	"go.uber.org/zap"
)

// Reserved low-32-bit sentinel values for the single-i64 ABI: when the
// high 32 bits (offset) are zero, the low 32 bits (length) carry one of
// these instead of a real byte count.
const (
	EncodedSuccess         uint32 = 0
	EncodedAllocationError uint32 = 1
	encodedFailureBase     uint32 = 2
)

// EncodeAllocation packs (offset, length) into the single i64 the ABI
// carries across the host/guest boundary.
func EncodeAllocation(offset, length uint32) int64 {
	return int64(uint64(offset)<<32 | uint64(length))
}

// DecodeAllocation unpacks an i64 into its (offset, length) halves.
func DecodeAllocation(v int64) (offset, length uint32) {
	u := uint64(v)
	return uint32(u >> 32), uint32(u)
}

// EncodeFailure packs a RibosomeFailed code as a reserved (offset=0)
// encoding.
func EncodeFailure(code uint32) int64 {
	return EncodeAllocation(0, encodedFailureBase+code)
}

// EncodeAllocationError packs the AllocationError reserved encoding.
func EncodeAllocationError() int64 {
	return EncodeAllocation(0, EncodedAllocationError)
}

// HostFunc is one entry in the host-call table: it receives the guest's
// JSON input and returns JSON output, or an error which becomes a
// RibosomeFailed encoding.
type HostFunc func(ctx context.Context, input []byte) ([]byte, error)

// HostTable is the fixed table of host functions a zome call may invoke
// (hc_commit_entry, hc_get_entry, hc_link_entries, hc_get_links,
// hc_query, hc_debug, hc_call, hc_send, hc_sign_one_time,
// hc_keystore_*, hc_commit_capability_grant, etc.), dispatched by name.
type HostTable map[string]HostFunc

// Ribosome is the zome call dispatcher's execution collaborator: it runs
// a zome function to completion and judges App entries against their
// declaring zome's validation callback.
type Ribosome interface {
	AppEntryValidator
	CallZomeFunction(ctx context.Context, zomeName, fnName string, params []byte) ([]byte, error)
}

// WasmerRibosome runs zome code through wasmer-go. One dedicated OS
// thread runs each call; host calls
// that need DHT/network roundtrips block synchronously on their
// HostFunc, which itself parks via BlockOn where a future is involved.
type WasmerRibosome struct {
	dna    *DNA
	hosts  HostTable
	log    *zap.Logger
	engine *wasmer.Engine

	mu      sync.Mutex
	modules map[string]*wasmer.Module // zome name -> compiled module

	callStackMu sync.Mutex
	callStack   map[string][]string // goroutine-scoped key -> zome/fn stack, guards re-entrancy
}

// NewWasmerRibosome constructs a ribosome over dna's zome code, wiring
// hosts as the host-call table every zome call may invoke.
func NewWasmerRibosome(dna *DNA, hosts HostTable, log *zap.Logger) *WasmerRibosome {
	if log == nil {
		log = zap.NewNop()
	}
	return &WasmerRibosome{
		dna:       dna,
		hosts:     hosts,
		log:       log,
		engine:    wasmer.NewEngine(),
		modules:   make(map[string]*wasmer.Module),
		callStack: make(map[string][]string),
	}
}

func (r *WasmerRibosome) compiledModule(zomeName string) (*wasmer.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[zomeName]; ok {
		return m, nil
	}
	zome, ok := r.dna.ZomeNamed(zomeName)
	if !ok {
		return nil, NewError(KindDNA, "ribosome_compile", fmt.Errorf("zome %s not declared", zomeName))
	}
	store := wasmer.NewStore(r.engine)
	mod, err := wasmer.NewModule(store, zome.Code.Code)
	if err != nil {
		return nil, NewError(KindRibosome, "ribosome_compile", err)
	}
	r.modules[zomeName] = mod
	return mod, nil
}

// instantiate builds a fresh wasmer instance for one call, wiring the
// host table into the guest's "env" import namespace. A fresh instance
// per call gives each zome call its own dedicated OS thread without
// sharing mutable guest memory across concurrent calls.
func (r *WasmerRibosome) instantiate(ctx context.Context, zomeName string) (*wasmer.Instance, *wasmer.Memory, error) {
	mod, err := r.compiledModule(zomeName)
	if err != nil {
		return nil, nil, err
	}
	store := mod.Store()
	importObject := wasmer.NewImportObject()

	namespace := make(map[string]wasmer.IntoExtern, len(r.hosts))
	for name, fn := range r.hosts {
		hostFn := fn
		fnName := name
		ft := wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I64), wasmer.NewValueTypes(wasmer.I64))
		namespace[name] = wasmer.NewFunction(store, ft, func(args []wasmer.Value) ([]wasmer.Value, error) {
			return r.dispatchHostCall(ctx, fnName, hostFn, args)
		})
	}
	importObject.Register("env", namespace)

	inst, err := wasmer.NewInstance(mod, importObject)
	if err != nil {
		return nil, nil, NewError(KindRibosome, "ribosome_instantiate", err)
	}
	mem, err := inst.Exports.GetMemory("memory")
	if err != nil {
		return nil, nil, NewError(KindRibosome, "ribosome_instantiate", err)
	}
	return inst, mem, nil
}

// hostInstanceRef lets dispatchHostCall reach the currently-instantiating
// guest's memory and allocator without widening every HostFunc's
// signature; it is set for the duration of a single CallZomeFunction.
type hostInstanceRef struct {
	mem      *wasmer.Memory
	allocate func(int32) (int32, error)
}

func (r *WasmerRibosome) dispatchHostCall(ctx context.Context, name string, fn HostFunc, args []wasmer.Value) ([]wasmer.Value, error) {
	ref, ok := ctx.Value(hostInstanceRefKey{}).(*hostInstanceRef)
	if !ok {
		return []wasmer.Value{wasmer.NewI64(EncodeAllocationError())}, nil
	}

	packed := args[0].I64()
	offset, length := DecodeAllocation(packed)
	data := ref.mem.Data()
	if uint64(offset)+uint64(length) > uint64(len(data)) {
		return []wasmer.Value{wasmer.NewI64(EncodeAllocationError())}, nil
	}
	input := make([]byte, length)
	copy(input, data[offset:offset+length])

	output, err := fn(ctx, input)
	if err != nil {
		r.log.Warn("host call failed", zap.String("fn", name), zap.Error(err))
		return []wasmer.Value{wasmer.NewI64(EncodeFailure(1))}, nil
	}

	outOffset, err := ref.allocate(int32(len(output)))
	if err != nil {
		return []wasmer.Value{wasmer.NewI64(EncodeAllocationError())}, nil
	}
	data = ref.mem.Data() // allocate may have grown memory; refresh the slice
	copy(data[outOffset:int(outOffset)+len(output)], output)
	return []wasmer.Value{wasmer.NewI64(EncodeAllocation(uint32(outOffset), uint32(len(output))))}, nil
}

type hostInstanceRefKey struct{}

// CallZomeFunction runs fnName in zomeName with params as its JSON
// input, on a dedicated OS thread, returning the guest's JSON output.
func (r *WasmerRibosome) CallZomeFunction(ctx context.Context, zomeName, fnName string, params []byte) ([]byte, error) {
	if err := r.pushCallStack(zomeName, fnName); err != nil {
		return nil, err
	}
	defer r.popCallStack(zomeName, fnName)

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		out, err := r.runOnCurrentThread(ctx, zomeName, fnName, params)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return nil, NewError(KindTimeout, "call_zome_function", ctx.Err())
	}
}

func (r *WasmerRibosome) runOnCurrentThread(ctx context.Context, zomeName, fnName string, params []byte) ([]byte, error) {
	inst, mem, err := r.instantiate(ctx, zomeName)
	if err != nil {
		return nil, err
	}

	allocateFn, err := inst.Exports.GetFunction("allocate")
	if err != nil {
		return nil, NewError(KindRibosome, "call_zome_function", fmt.Errorf("zome missing allocate export: %w", err))
	}
	allocate := func(n int32) (int32, error) {
		v, err := allocateFn(n)
		if err != nil {
			return 0, err
		}
		off, ok := v.(int32)
		if !ok {
			return 0, fmt.Errorf("allocate returned non-int32")
		}
		return off, nil
	}

	ref := &hostInstanceRef{mem: mem, allocate: allocate}
	ctx = context.WithValue(ctx, hostInstanceRefKey{}, ref)

	inOffset, err := allocate(int32(len(params)))
	if err != nil {
		return nil, NewError(KindRibosome, "call_zome_function", err)
	}
	data := mem.Data()
	copy(data[inOffset:int(inOffset)+len(params)], params)

	guestFn, err := inst.Exports.GetFunction(fnName)
	if err != nil {
		return nil, NewError(KindDNA, "call_zome_function", fmt.Errorf("function %s not exported: %w", fnName, err))
	}
	packedIn := EncodeAllocation(uint32(inOffset), uint32(len(params)))
	raw, err := guestFn(packedIn)
	if err != nil {
		return nil, NewError(KindRibosome, "call_zome_function", err)
	}
	packedOut, ok := raw.(int64)
	if !ok {
		return nil, NewError(KindRibosome, "call_zome_function", fmt.Errorf("zome function returned non-i64"))
	}

	outOffset, outLength := DecodeAllocation(packedOut)
	if outOffset == 0 {
		switch outLength {
		case EncodedSuccess:
			return []byte("null"), nil
		case EncodedAllocationError:
			return nil, NewError(KindRibosome, "call_zome_function", fmt.Errorf("guest allocation error"))
		default:
			return nil, NewError(KindRibosome, "call_zome_function", fmt.Errorf("guest trapped with code %d", outLength-encodedFailureBase))
		}
	}

	data = mem.Data()
	if uint64(outOffset)+uint64(outLength) > uint64(len(data)) {
		return nil, NewError(KindRibosome, "call_zome_function", fmt.Errorf("guest returned out-of-bounds allocation"))
	}
	out := make([]byte, outLength)
	copy(out, data[outOffset:outOffset+outLength])
	return out, nil
}

// ValidateAppEntry invokes __hdk_validate_app_entry in the declaring
// zome with the validation package JSON.
func (r *WasmerRibosome) ValidateAppEntry(ctx context.Context, zomeName, entryType string, pkg ValidationPackage) (ValidationOutcome, error) {
	payload, err := CanonicalJSON(pkg)
	if err != nil {
		return ValidationOutcome{}, err
	}
	out, err := r.CallZomeFunction(ctx, zomeName, "__hdk_validate_app_entry", payload)
	if err != nil {
		return ValidationOutcome{Kind: OutcomeInvalid, Reason: err.Error()}, nil
	}
	if string(out) == "null" || string(out) == `"Valid"` {
		return ValidationOutcome{Kind: OutcomeValid}, nil
	}
	return ValidationOutcome{Kind: OutcomeInvalid, Reason: string(out)}, nil
}

func (r *WasmerRibosome) pushCallStack(zomeName, fnName string) error {
	key := fmt.Sprintf("%s/%s", zomeName, fnName)
	r.callStackMu.Lock()
	defer r.callStackMu.Unlock()
	if len(r.callStack[key]) > 0 {
		return NewError(KindRibosome, "call_stack", fmt.Errorf("re-entrant call to %s forbidden", key))
	}
	r.callStack[key] = append(r.callStack[key], key)
	return nil
}

func (r *WasmerRibosome) popCallStack(zomeName, fnName string) {
	key := fmt.Sprintf("%s/%s", zomeName, fnName)
	r.callStackMu.Lock()
	defer r.callStackMu.Unlock()
	frames := r.callStack[key]
	if len(frames) > 0 {
		r.callStack[key] = frames[:len(frames)-1]
	}
}

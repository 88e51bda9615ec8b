// Package events implements the events native module (spec.md §6):
// registering script handlers for host-raised external events and
// driving the suspend side of the event loop. Grounded on
// iolang/coroutine.go's pause/resume naming, reapplied to the Context's
// synchronous Suspend rather than a goroutine-based coroutine.
package events

import (
	"fmt"

	slvm "github.com/oinkcat/sl-evaluator"
)

func init() {
	slvm.RegisterModuleFactory("events", build)
}

func build() *slvm.NativeModule {
	m := slvm.NewNativeModule("events")
	m.AddConstant("Start", slvm.TextValue("start"))
	m.AddConstant("End", slvm.TextValue("exit"))

	m.AddFunction("SetHandler", 2, setHandler)
	m.AddFunction("MapHandlers", 1, mapHandlers)
	m.AddFunction("StartLoop", 0, startLoop)
	m.AddFunction("ExitLoop", 0, exitLoop)
	return m
}

// setHandler implements events.SetHandler(name, ref): installs ref as
// the handler for the external event named name.
func setHandler(ctx *slvm.Context) error {
	ref, err := ctx.PopFunctionRef()
	if err != nil {
		return fmt.Errorf("SetHandler: %w", err)
	}
	name, err := ctx.PopText()
	if err != nil {
		return fmt.Errorf("SetHandler: %w", err)
	}
	ctx.SetEventHandler(name, ref)
	return nil
}

// mapHandlers implements events.MapHandlers(hash): installs every
// Text-keyed FunctionRef entry of hash as an event handler in one call.
func mapHandlers(ctx *slvm.Context) error {
	h, err := ctx.PopHash()
	if err != nil {
		return fmt.Errorf("MapHandlers: %w", err)
	}
	for _, key := range h.Keys() {
		v, _ := h.Get(key)
		fr, ok := v.FunctionRefPtr()
		if !ok {
			return fmt.Errorf("MapHandlers: handler %q must be a FunctionRef, got %s", key, v.Kind())
		}
		ctx.SetEventHandler(key, fr)
	}
	return nil
}

// startLoop implements events.StartLoop(): installs the event dispatcher
// by suspending the VM so the host's raise_event can drive it (spec.md
// §9 "StartLoop suspends"; no other semantics are invented).
func startLoop(ctx *slvm.Context) error {
	ctx.Suspend()
	return nil
}

// exitLoop implements events.ExitLoop(): a documented no-op (spec.md §9
// "ExitLoop has no effect").
func exitLoop(ctx *slvm.Context) error {
	return nil
}

package registry

import (
	"encoding/json"
	"fmt"

	"vab-bridge/message"
	"vab-bridge/service"
)

// Element names shared with the host platform.
const (
	PropID          = "id"
	PropName        = "name"
	PropState       = "state"
	PropDeployable  = "deployable"
	PropTopLevel    = "topLevel"
	PropKind        = "kind"
	PropVersion     = "version"
	PropDescription = "description"

	OpActivate    = "activate"
	OpPassivate   = "passivate"
	OpMigrate     = "migrate"
	OpUpdate      = "update"
	OpSwitch      = "switchTo"
	OpReconfigure = "reconfigure"
	OpSetState    = "setState"
	OpGetState    = "getState"
)

// MapService defines the read-only properties and the lifecycle operations of
// svc under its qualified names. Every operation returns a message.Envelope.
func MapService(ops *Operations, svc service.Service) error {
	id := svc.ID()
	props := []struct {
		name string
		get  Getter
	}{
		{PropID, func() (any, error) { return svc.ID(), nil }},
		{PropName, func() (any, error) { return svc.Name(), nil }},
		{PropDescription, func() (any, error) { return svc.Description(), nil }},
		{PropVersion, func() (any, error) { return svc.Version().String(), nil }},
		{PropKind, func() (any, error) { return svc.Kind().String(), nil }},
		{PropState, func() (any, error) { return svc.State().String(), nil }},
		{PropDeployable, func() (any, error) { return svc.IsDeployable(), nil }},
		{PropTopLevel, func() (any, error) { return svc.IsTopLevel(), nil }},
	}
	for _, p := range props {
		if err := ops.DefineProperty(QualifiedName(id, p.name), p.get, nil); err != nil {
			return err
		}
	}

	operations := map[string]message.Func{
		OpActivate: func(args ...any) (any, error) {
			return nil, svc.Activate()
		},
		OpPassivate: func(args ...any) (any, error) {
			return nil, svc.Passivate()
		},
		OpMigrate: func(args ...any) (any, error) {
			return nil, svc.Migrate(stringArg(args, 0, ""))
		},
		OpUpdate: func(args ...any) (any, error) {
			return nil, svc.Update(stringArg(args, 0, ""))
		},
		OpSwitch: func(args ...any) (any, error) {
			return nil, svc.SwitchTo(stringArg(args, 0, ""))
		},
		OpReconfigure: func(args ...any) (any, error) {
			values, err := MapArg(args, 0)
			if err != nil {
				return nil, err
			}
			return nil, svc.Reconfigure(values)
		},
		OpSetState: func(args ...any) (any, error) {
			st, err := service.ParseState(stringArg(args, 0, ""))
			if err != nil {
				return nil, err
			}
			return nil, svc.SetState(st)
		},
		OpGetState: func(args ...any) (any, error) {
			return svc.State().String(), nil
		},
	}
	for name, fn := range operations {
		fn := fn
		op := func(args []any) (any, error) {
			return message.ComposeResult(fn, args...), nil
		}
		if err := ops.DefineOperation(QualifiedName(id, name), op); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args []any, i int, dflt string) string {
	if i >= len(args) || args[i] == nil {
		return dflt
	}
	if s, ok := args[i].(string); ok {
		return s
	}
	return fmt.Sprint(args[i])
}

// MapArg reads a string map argument. The host sends it either as a JSON
// object or as a string holding a JSON object.
func MapArg(args []any, i int) (map[string]string, error) {
	if i >= len(args) || args[i] == nil {
		return map[string]string{}, nil
	}
	switch v := args[i].(type) {
	case string:
		out := map[string]string{}
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("reconfigure values: %w", err)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			} else {
				out[k] = fmt.Sprint(val)
			}
		}
		return out, nil
	case map[string]string:
		return v, nil
	}
	return nil, fmt.Errorf("reconfigure values: unexpected argument %T", args[i])
}

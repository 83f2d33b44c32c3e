package loader

import (
	"fmt"
	"strings"

	"vab-bridge/registry"
	"vab-bridge/service"
)

var builtins = map[string]Factory{
	"echo":       echoFactory,
	"upper":      upperFactory,
	"async-echo": asyncEchoFactory,
}

// echoFactory returns every input unchanged.
func echoFactory(entry ServiceEntry) (service.Service, Bindings, error) {
	svc := service.NewBase(entry.Record)
	return svc, bindEach(entry.Inputs, registry.Transformer{
		Sync: func(data any) (any, error) { return data, nil },
	}), nil
}

// upperFactory upper-cases text inputs.
func upperFactory(entry ServiceEntry) (service.Service, Bindings, error) {
	svc := service.NewBase(entry.Record)
	return svc, bindEach(entry.Inputs, registry.Transformer{
		Sync: func(data any) (any, error) {
			s, ok := data.(string)
			if !ok {
				return nil, fmt.Errorf("upper: want string, got %T", data)
			}
			return strings.ToUpper(s), nil
		},
	}), nil
}

// asyncEchoFactory hands every input back through the service's ingestor.
// The number of copies comes from the "repeat" parameter.
func asyncEchoFactory(entry ServiceEntry) (service.Service, Bindings, error) {
	repeat := 1
	if r, ok := entry.Params["repeat"]; ok {
		if _, err := fmt.Sscanf(r, "%d", &repeat); err != nil || repeat < 0 {
			return nil, nil, fmt.Errorf("async-echo: bad repeat %q", r)
		}
	}
	svc := service.NewBase(entry.Record)
	return svc, bindEach(entry.Inputs, registry.Transformer{
		Async: func(data any) error {
			for i := 0; i < repeat; i++ {
				svc.Ingest(data)
			}
			return nil
		},
	}), nil
}

func bindEach(tags []string, t registry.Transformer) Bindings {
	b := make(Bindings, len(tags))
	for _, tag := range tags {
		b[tag] = t
	}
	return b
}

package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/capitalize-ai/chat-orchestrator/internal/function"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// defaultParams is the parameter library used when no library file is configured.
var defaultParams = map[string]function.ParamDefinition{
	"timezone": {Type: "string", Description: "IANA time zone name, for example Europe/Paris"},
}

var timezoneParam = model.FunctionParameter{
	Name:        "timezone",
	Type:        "string",
	Description: defaultParams["timezone"].Description,
}

// currentTime reports the time in the requested zone, UTC by default.
func currentTime(_ context.Context, args map[string]any) (any, error) {
	loc := time.UTC
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown time zone %q", tz)
		}
		loc = l
	}
	return time.Now().In(loc).Format(time.RFC1123), nil
}

// builtinFunctions registers the server's functions and builds their items.
func builtinFunctions(factory *function.Factory, registry *model.MethodRegistry) ([]model.FunctionItem, error) {
	if err := registry.Register("current_time", currentTime); err != nil {
		return nil, err
	}

	spec := function.ItemSpec{
		Name:        "current_time",
		Description: "Get the current date and time.",
		Required:    []string{},
		AutoCall:    true,
		Tags:        []string{"time", "date", "clock", "today"},
	}
	if slices.Contains(factory.Params(), "timezone") {
		spec.Params = []string{"timezone"}
	} else {
		spec.CustomParams = []model.FunctionParameter{timezoneParam}
	}

	method, _ := registry.Lookup("current_time")
	item, err := factory.CreateFunctionItem(spec, method)
	if err != nil {
		return nil, fmt.Errorf("current_time: %w", err)
	}
	return []model.FunctionItem{item}, nil
}

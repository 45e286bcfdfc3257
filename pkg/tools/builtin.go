package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vitalmind/agentmem/pkg/errors"
)

// ObjectSchema builds a JSON schema for an object with the given
// properties. Every property is required.
func ObjectSchema(properties map[string]any) map[string]any {
	required := make([]string, 0, len(properties))
	for name := range properties {
		required = append(required, name)
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty describes a string field for ObjectSchema.
func StringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// NumberProperty describes a number field for ObjectSchema.
func NumberProperty(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// NewCurrentTimeTool reports the current time, optionally in a named
// IANA time zone.
func NewCurrentTimeTool() Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": StringProperty("IANA time zone name, e.g. \"Asia/Tokyo\". Defaults to UTC."),
		},
	}
	return NewFunc("current_time", "Get the current date and time.", schema,
		func(_ context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Timezone string `json:"timezone"`
			}
			if len(input) > 0 {
				if err := json.Unmarshal(input, &args); err != nil {
					return "", errors.Wrap(errors.ErrValidation, "invalid arguments: %v", err)
				}
			}

			loc := time.UTC
			if args.Timezone != "" {
				var err error
				loc, err = time.LoadLocation(args.Timezone)
				if err != nil {
					return "", errors.Wrap(errors.ErrValidation, "unknown time zone %q", args.Timezone)
				}
			}
			return time.Now().In(loc).Format("Monday, January 2, 2006 at 15:04 MST"), nil
		})
}

// NewCalculatorTool performs basic arithmetic.
func NewCalculatorTool() Tool {
	schema := ObjectSchema(map[string]any{
		"operation": StringProperty("One of: add, subtract, multiply, divide."),
		"a":         NumberProperty("First operand."),
		"b":         NumberProperty("Second operand."),
	})
	return NewFunc("calculator", "Perform basic arithmetic on two numbers.", schema,
		func(_ context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Operation string  `json:"operation"`
				A         float64 `json:"a"`
				B         float64 `json:"b"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", errors.Wrap(errors.ErrValidation, "invalid arguments: %v", err)
			}

			var result float64
			switch args.Operation {
			case "add":
				result = args.A + args.B
			case "subtract":
				result = args.A - args.B
			case "multiply":
				result = args.A * args.B
			case "divide":
				if args.B == 0 {
					return "", errors.Wrap(errors.ErrValidation, "division by zero")
				}
				result = args.A / args.B
			default:
				return "", errors.Wrap(errors.ErrValidation, "unknown operation %q", args.Operation)
			}
			return fmt.Sprintf("%g", result), nil
		})
}

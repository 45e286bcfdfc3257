package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalmind/agentmem/pkg/tools"
)

func echoTool(name string) tools.Tool {
	return tools.NewFunc(name, "echoes its input", map[string]any{"type": "object"},
		func(_ context.Context, input json.RawMessage) (string, error) {
			return string(input), nil
		})
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool("echo")))

	tool, ok := registry.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Name())

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool("echo")))
	assert.Error(t, registry.Register(echoTool("echo")))
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	registry := tools.NewRegistry()
	assert.Error(t, registry.Register(echoTool("")))
	assert.Error(t, registry.Register(nil))
}

func TestRegistryListPreservesOrder(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool("b")))
	require.NoError(t, registry.Register(echoTool("a")))
	require.NoError(t, registry.Register(echoTool("c")))

	list := registry.List()
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0].Name())
	assert.Equal(t, "a", list[1].Name())
	assert.Equal(t, "c", list[2].Name())
}

func TestCalculatorTool(t *testing.T) {
	tool := tools.NewCalculatorTool()
	ctx := context.Background()

	tests := []struct {
		input string
		want  string
	}{
		{`{"operation":"add","a":2,"b":3}`, "5"},
		{`{"operation":"subtract","a":10,"b":4}`, "6"},
		{`{"operation":"multiply","a":2.5,"b":4}`, "10"},
		{`{"operation":"divide","a":9,"b":3}`, "3"},
	}
	for _, tt := range tests {
		got, err := tool.Invoke(ctx, json.RawMessage(tt.input))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := tool.Invoke(ctx, json.RawMessage(`{"operation":"divide","a":1,"b":0}`))
	assert.Error(t, err)

	_, err = tool.Invoke(ctx, json.RawMessage(`{"operation":"modulo","a":1,"b":2}`))
	assert.Error(t, err)
}

func TestCurrentTimeTool(t *testing.T) {
	tool := tools.NewCurrentTimeTool()

	out, err := tool.Invoke(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = tool.Invoke(context.Background(), json.RawMessage(`{"timezone":"Not/AZone"}`))
	assert.Error(t, err)
}

func TestObjectSchema(t *testing.T) {
	schema := tools.ObjectSchema(map[string]any{
		"name": tools.StringProperty("a name"),
	})
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["required"], "name")
}

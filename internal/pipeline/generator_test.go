package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/pkg/llm"
)

func TestGenerator_Generate(t *testing.T) {
	t.Parallel()

	ev := wireEvent("Norman Conquest", "  A duke   crosses the sea ", " England ")
	client := &stubClient{responses: []*llm.Result{
		jsonResult(t, "req-1", generatorPayload{Year: 1066, Era: "CE", Events: []generatedEvent{ev}}),
	}}
	gen := NewGenerator(client, llm.Options{Model: "primary"})

	out, err := gen.Generate(context.Background(), 1066, model.EraCE)
	require.NoError(t, err)

	assert.Equal(t, 1066, out.Year)
	assert.Equal(t, model.EraCE, out.Era)
	assert.Equal(t, "req-1", out.LLM.RequestID)

	require.Len(t, out.Candidates, 1)
	cand := out.Candidates[0]
	assert.Equal(t, "A duke crosses the sea", cand.EventText)
	assert.Equal(t, "England", cand.Geo)
	assert.Equal(t, "politics", cand.Metadata["category"])
	assert.Equal(t, "CE", cand.Metadata["era"])
	assert.Equal(t, "war", cand.Metadata["tags"])
	assert.False(t, cand.LeakFlags.Any())

	// The request carried the schema and the stage cache namespace.
	require.Len(t, client.calls, 1)
	req := client.calls[0]
	assert.Same(t, generatorSchema, req.Schema)
	assert.True(t, req.Options.Cacheable)
	assert.Equal(t, "generator", req.Options.CacheNamespace)
}

func TestGenerator_EchoMismatchIsNonFatal(t *testing.T) {
	t.Parallel()

	client := &stubClient{responses: []*llm.Result{
		jsonResult(t, "req-1", generatorPayload{Year: 1067, Era: "CE", Events: []generatedEvent{
			wireEvent("Off By One", "A duke crosses the sea", "England"),
		}}),
	}}
	out, err := NewGenerator(client, llm.Options{}).Generate(context.Background(), 1066, model.EraCE)
	require.NoError(t, err)
	assert.Len(t, out.Candidates, 1)
}

func TestGenerator_RejectsInvalidEra(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	_, err := NewGenerator(client, llm.Options{}).Generate(context.Background(), 100, model.Era("AD"))
	require.Error(t, err)
	assert.Zero(t, client.callCount())
}

package inference

import (
	"context"
	"os"
	"testing"
)

// TestPhi2Continuation runs against real Phi-2 weights when PHIGO_MODEL_DIR
// points at a checkpoint directory.
func TestPhi2Continuation(t *testing.T) {
	dir := os.Getenv("PHIGO_MODEL_DIR")
	if dir == "" {
		t.Skip("PHIGO_MODEL_DIR not set")
	}

	res, err := Loader{}.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() { _ = res.Engine.Close() }()

	var outputs []string
	for range 2 {
		req := Request{Prompt: "2+2=", MaxTokens: 5}
		out, err := res.Engine.Generate(context.Background(), &req, nil)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if out.Stats.TokensGenerated > 5 {
			t.Fatalf("generated %d tokens, limit 5", out.Stats.TokensGenerated)
		}
		outputs = append(outputs, out.Text)
	}
	if outputs[0] != outputs[1] {
		t.Fatalf("greedy continuation changed between runs: %q vs %q", outputs[0], outputs[1])
	}
	t.Logf("2+2= -> %q", outputs[0])
}

package runner

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/7blacky7/gpurun/ml"
)

func TestAnalyzePlacement(t *testing.T) {
	cases := []struct {
		name    string
		plan    []ml.Node
		want    Placement
		summary string
	}{
		{
			name:    "empty",
			want:    Placement{Analyzed: true},
			summary: "No ops scheduled",
		},
		{
			name: "all delegated",
			plan: []ml.Node{
				{Index: 5, Delegated: true, CustomName: "TfLiteGpuDelegateV2"},
			},
			want:    Placement{Total: 1, Delegated: 1, Analyzed: true},
			summary: "All ops executed on GPU",
		},
		{
			name: "mixed",
			plan: []ml.Node{
				{Index: 0, BuiltinName: "CONV_2D"},
				{Index: 7, Delegated: true, CustomName: "TfLiteGpuDelegateV2"},
				{Index: 3, CustomName: "Convolution2DTransposeBias"},
				{Index: 4, BuiltinName: "CONV_2D"},
				{Index: 6},
			},
			want: Placement{
				Total:     5,
				Delegated: 1,
				Host:      4,
				HostOps:   []string{"CONV_2D", "Convolution2DTransposeBias", "CONV_2D", "UNKNOWN"},
				Analyzed:  true,
			},
			summary: "4 ops executed on CPU fallback",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := analyzePlacement(tt.plan)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("analyzePlacement mismatch (-want +got):\n%s", diff)
			}

			if got.Delegated+got.Host != got.Total {
				t.Errorf("delegated %d + host %d != total %d", got.Delegated, got.Host, got.Total)
			}

			if s := got.Summary(); s != tt.summary {
				t.Errorf("Summary() = %q, want %q", s, tt.summary)
			}
		})
	}
}

func TestPlacementPercent(t *testing.T) {
	p := Placement{Total: 4, Delegated: 3, Host: 1}
	if got := p.GPUPercent(); got != 75 {
		t.Errorf("GPUPercent() = %v, want 75", got)
	}
	if got := p.HostPercent(); got != 25 {
		t.Errorf("HostPercent() = %v, want 25", got)
	}

	if got := (Placement{}).GPUPercent(); got != 0 {
		t.Errorf("GPUPercent() without ops = %v, want 0", got)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateUnloaded:         "unloaded",
		StateModelLoaded:      "model_loaded",
		StateGraphAllocated:   "graph_allocated",
		StateDelegateAttached: "delegate_attached",
		StateInvoked:          "invoked",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

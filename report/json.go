// json.go - JSON-Ausgabe des Reports
//
// Die Reihenfolge der Felder folgt der Pipeline, deshalb ein geordnetes
// Map statt eines Structs mit map-Feldern.
package report

import (
	"encoding/json"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/7blacky7/gpurun/runner"
)

func (r *Report) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, any]()
	out.Set("run_id", r.Meta.RunID)
	out.Set("timestamp", r.Meta.Timestamp.UTC().Format(time.RFC3339))
	out.Set("model", r.Meta.Model)
	out.Set("backend", r.Meta.Backend)
	out.Set("gpu_requested", r.Meta.GPURequested)
	out.Set("delegate_attached", r.Stats.DelegateAttached)
	out.Set("state", r.Stats.State.String())

	timing := orderedmap.New[string, float64]()
	for _, row := range r.timingRows() {
		timing.Set(row.key+"_ms", float64(row.value)/float64(time.Millisecond))
	}
	out.Set("timing", timing)

	out.Set("profiling", r.Stats.Profiling)
	if r.Stats.Profiling {
		memory := orderedmap.New[string, any]()
		for _, c := range runner.MemoryCheckpoints {
			m := r.Stats.Memory(c)
			if !m.Available() {
				memory.Set(string(c), nil)
				continue
			}
			memory.Set(string(c), m)
		}
		out.Set("memory", memory)

		gpu := orderedmap.New[string, any]()
		for _, c := range runner.GPUCheckpoints {
			gpu.Set(string(c), r.Stats.GPU(c))
		}
		out.Set("gpu_memory", gpu)
	}

	if r.Stats.Placement.Analyzed {
		out.Set("placement", r.Stats.Placement)
	} else {
		out.Set("placement", nil)
	}

	return json.Marshal(out)
}

package panel

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/wavemcp/wavemcp/internal/task"
)

// Fingerprint computes the per-section content hashes and aggregate
// md_version for a task: each top-level section gets its own
// hash over a canonical JSON encoding of its content (not the rendered
// Markdown bytes, so trivial formatting differences never cause a false
// content-change signal), and plans/EVRs get an additional id-keyed
// sub-hash so a change inside one plan doesn't invalidate the others.
func Fingerprint(t *task.Task) task.Fingerprints {
	fp := task.NewFingerprints()

	fp.Title = hashJSON(t.Title)
	fp.Requirements = hashJSON(t.Requirements)
	fp.Issues = hashJSON(t.Issues)
	fp.Hints = hashJSON(t.Hints)
	fp.Logs = hashJSON(t.Logs)

	for i := range t.Plans {
		p := &t.Plans[i]
		fp.Plans[p.ID] = hashJSON(planFingerprint(p))
	}
	for i := range t.EVRs {
		e := &t.EVRs[i]
		fp.EVRs[e.ID] = hashJSON(evrFingerprint(e))
	}

	return fp
}

// planFingerprintView/evrFingerprintView strip fields that are owned by
// the task side only (status, timestamps) out of the hash input when
// those fields are not "content" under the ownership split — the
// fingerprint exists to detect *content* drift between panel and task,
// not status drift, which the sync engine tracks separately.
type planFingerprintView struct {
	Description string            `json:"description"`
	Hints       []string          `json:"hints,omitempty"`
	Tags        []task.ContextTag `json:"tags,omitempty"`
	Steps       []stepFingerprint `json:"steps,omitempty"`
}

type stepFingerprint struct {
	Description string            `json:"description"`
	Hints       []string          `json:"hints,omitempty"`
	Tags        []task.ContextTag `json:"tags,omitempty"`
	UsesEVR     []string          `json:"uses_evr,omitempty"`
}

func planFingerprint(p *task.Plan) planFingerprintView {
	steps := make([]stepFingerprint, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = stepFingerprint{Description: s.Description, Hints: s.Hints, Tags: s.Tags, UsesEVR: s.UsesEVR}
	}
	return planFingerprintView{Description: p.Description, Hints: p.Hints, Tags: p.Tags, Steps: steps}
}

type evrFingerprintView struct {
	Title  string          `json:"title"`
	Verify task.TextOrList `json:"verify"`
	Expect task.TextOrList `json:"expect"`
}

func evrFingerprint(e *task.EVR) evrFingerprintView {
	return evrFingerprintView{Title: e.Title, Verify: e.Verify, Expect: e.Expect}
}

// secondSeed is an arbitrary odd constant giving the second xxhash pass
// an independent key stream.
const secondSeed = 0x9e3779b97f4a7c15

// hashJSON produces a 128-bit content hash as two independently seeded
// xxhash64 halves; a collision would need both 64-bit halves to collide
// at once, which is the collision-resistance class the fingerprints
// need without paying for a cryptographic hash on every read.
func hashJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Fields reaching this point are always JSON-marshalable plain
		// data; a failure here means a programmer error upstream.
		panic(fmt.Sprintf("panel: fingerprint input not marshalable: %v", err))
	}
	d := xxhash.NewWithSeed(secondSeed)
	d.Write(b)
	return fmt.Sprintf("%016x%016x", xxhash.Sum64(b), d.Sum64())
}

// AggregateVersion computes the document-wide md_version from the set of
// section fingerprints: a deterministic hash over the sorted (section,
// hash) pairs, so that the result doesn't depend on Go map iteration
// order.
func AggregateVersion(fp task.Fingerprints) string {
	pairs := []string{
		"title:" + fp.Title,
		"requirements:" + fp.Requirements,
		"issues:" + fp.Issues,
		"hints:" + fp.Hints,
		"logs:" + fp.Logs,
	}
	for _, id := range sortedStringKeys(fp.Plans) {
		pairs = append(pairs, "plan:"+id+":"+fp.Plans[id])
	}
	for _, id := range sortedStringKeys(fp.EVRs) {
		pairs = append(pairs, "evr:"+id+":"+fp.EVRs[id])
	}
	return hashJSON(pairs)
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

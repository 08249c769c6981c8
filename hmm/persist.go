package hmm

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/GilbertHan1011/statepeaks/emission"
	"github.com/GilbertHan1011/statepeaks/logspace"
)

// Serialized models travel in a versioned envelope; the loader
// refuses any version other than the statically known current one and
// rebuilds transient derived state after decoding raw fields.
const (
	modelTypeTag = "statepeaks.hmm"
	modelVersion = 1

	tagFreeBinding        = "free"
	tagConstrainedBinding = "constrained"
)

type envelope struct {
	Type    string          `json:"type"`
	Version int             `json:"format_version"`
	Payload json.RawMessage `json:"payload"`
}

type modelPayload struct {
	NumStates      int             `json:"num_states"`
	LogPriors      logVec          `json:"log_priors"`
	LogTransitions []logVec        `json:"log_transitions"`
	Binding        bindingEnvelope `json:"binding"`
}

type bindingEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type freePayload struct {
	Schemes [][]json.RawMessage `json:"schemes"`
}

type constrainedPayload struct {
	Schemes []json.RawMessage `json:"schemes"`
	Map     [][]int           `json:"map"`
}

// logVec carries log probabilities through JSON; -Inf (a legitimate
// log probability) is not a valid JSON number and is encoded as the
// string "-Inf".
type logVec []float64

func (v logVec) MarshalJSON() ([]byte, error) {
	out := make([]interface{}, len(v))
	for i, x := range v {
		if math.IsInf(x, -1) {
			out[i] = "-Inf"
		} else {
			out[i] = x
		}
	}
	return json.Marshal(out)
}

func (v *logVec) UnmarshalJSON(b []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*v = make(logVec, len(raw))
	for i, e := range raw {
		switch x := e.(type) {
		case float64:
			(*v)[i] = x
		case string:
			if x != "-Inf" {
				return fmt.Errorf("hmm: invalid log probability %q", x)
			}
			(*v)[i] = math.Inf(-1)
		default:
			return fmt.Errorf("hmm: invalid log probability entry of type %T", e)
		}
	}
	return nil
}

// Save writes the model as a versioned JSON envelope.
func (m *Model) Save(w io.Writer) error {
	binding, err := marshalBinding(m.binding)
	if err != nil {
		return err
	}

	payload := modelPayload{
		NumStates:      m.numStates,
		LogPriors:      logVec(m.logPriors),
		LogTransitions: make([]logVec, m.numStates),
		Binding:        binding,
	}
	for i, row := range m.logTransitions {
		payload.LogTransitions[i] = logVec(row)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope{Type: modelTypeTag, Version: modelVersion, Payload: raw})
}

// Load reads a model from its versioned JSON envelope, failing on any
// type tag or format version mismatch, and rebuilds the binding's
// derived indices before returning.
func Load(r io.Reader) (*Model, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("hmm: decoding envelope: %w", err)
	}
	if env.Type != modelTypeTag {
		return nil, fmt.Errorf("hmm: unexpected type tag %q, want %q", env.Type, modelTypeTag)
	}
	if env.Version != modelVersion {
		return nil, fmt.Errorf("hmm: format version %d does not match current version %d", env.Version, modelVersion)
	}

	var payload modelPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("hmm: decoding payload: %w", err)
	}
	n := payload.NumStates
	if n < 2 {
		return nil, fmt.Errorf("hmm: need at least 2 states, got %d", n)
	}
	if len(payload.LogPriors) != n || len(payload.LogTransitions) != n {
		return nil, fmt.Errorf("hmm: parameter shapes do not match %d states", n)
	}
	if math.Abs(logspace.SumExp(payload.LogPriors)) > stochasticTol {
		return nil, fmt.Errorf("hmm: loaded priors are not log-normalized")
	}

	m := &Model{
		numStates:      n,
		logPriors:      payload.LogPriors,
		logTransitions: make([][]float64, n),
	}
	for i, row := range payload.LogTransitions {
		if len(row) != n {
			return nil, fmt.Errorf("hmm: transition row %d has %d entries, want %d", i, len(row), n)
		}
		if math.Abs(logspace.SumExp(row)) > stochasticTol {
			return nil, fmt.Errorf("hmm: loaded transition row %d is not log-normalized", i)
		}
		m.logTransitions[i] = row
	}

	binding, err := unmarshalBinding(payload.Binding)
	if err != nil {
		return nil, err
	}
	if err := binding.RebuildDerivedIndices(); err != nil {
		return nil, err
	}
	m.binding = binding
	return m, nil
}

func marshalBinding(b EmissionBinding) (bindingEnvelope, error) {
	switch b := b.(type) {
	case *FreeBinding:
		p := freePayload{Schemes: make([][]json.RawMessage, len(b.Schemes))}
		for s, row := range b.Schemes {
			p.Schemes[s] = make([]json.RawMessage, len(row))
			for d, scheme := range row {
				raw, err := emission.Marshal(scheme)
				if err != nil {
					return bindingEnvelope{}, err
				}
				p.Schemes[s][d] = raw
			}
		}
		raw, err := json.Marshal(p)
		return bindingEnvelope{Type: tagFreeBinding, Payload: raw}, err

	case *ConstrainedBinding:
		p := constrainedPayload{
			Schemes: make([]json.RawMessage, len(b.Schemes)),
			Map:     b.Map,
		}
		for k, scheme := range b.Schemes {
			raw, err := emission.Marshal(scheme)
			if err != nil {
				return bindingEnvelope{}, err
			}
			p.Schemes[k] = raw
		}
		raw, err := json.Marshal(p)
		return bindingEnvelope{Type: tagConstrainedBinding, Payload: raw}, err

	default:
		return bindingEnvelope{}, fmt.Errorf("hmm: cannot serialize binding of type %T", b)
	}
}

func unmarshalBinding(env bindingEnvelope) (EmissionBinding, error) {
	switch env.Type {
	case tagFreeBinding:
		var p freePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		schemes := make([][]emission.Scheme, len(p.Schemes))
		for s, row := range p.Schemes {
			schemes[s] = make([]emission.Scheme, len(row))
			for d, raw := range row {
				scheme, err := emission.Unmarshal(raw)
				if err != nil {
					return nil, err
				}
				schemes[s][d] = scheme
			}
		}
		return NewFreeBinding(schemes)

	case tagConstrainedBinding:
		var p constrainedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		schemes := make([]emission.Scheme, len(p.Schemes))
		for k, raw := range p.Schemes {
			scheme, err := emission.Unmarshal(raw)
			if err != nil {
				return nil, err
			}
			schemes[k] = scheme
		}
		return NewConstrainedBinding(schemes, p.Map)

	default:
		return nil, fmt.Errorf("hmm: unknown binding tag %q", env.Type)
	}
}

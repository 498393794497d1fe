package dag

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FeatureType classifies an attribution graph node.
// The numeric value doubles as the canonical sort priority.
type FeatureType int

const (
	FeatureTranscoder FeatureType = iota
	FeatureErrorResidual
	FeatureEmbedding
	FeatureLogit
	FeatureOther
)

// Wire names used by upstream graph files.
const (
	wireTranscoder    = "cross layer transcoder"
	wireErrorResidual = "mlp reconstruction error"
	wireEmbedding     = "embedding"
	wireLogit         = "logit"
)

// UnparsableLayer is the layer number assigned to layers that are neither "E" nor an integer.
const UnparsableLayer = 999

// EmbeddingLayer is the sentinel layer label of embedding nodes.
const EmbeddingLayer = "E"

// ParseFeatureType maps a wire or Go-style name onto a FeatureType.
// Unknown names map to FeatureOther.
func ParseFeatureType(s string) FeatureType {
	switch s {
	case wireTranscoder, "Transcoder", "transcoder":
		return FeatureTranscoder
	case wireErrorResidual, "ErrorResidual", "error_residual":
		return FeatureErrorResidual
	case wireEmbedding, "Embedding":
		return FeatureEmbedding
	case wireLogit, "Logit":
		return FeatureLogit
	default:
		return FeatureOther
	}
}

// Priority returns the canonical sort priority of the feature type.
func (f FeatureType) Priority() int {
	if f < FeatureTranscoder || f > FeatureOther {
		return int(FeatureOther)
	}
	return int(f)
}

func (f FeatureType) String() string {
	switch f {
	case FeatureTranscoder:
		return "Transcoder"
	case FeatureErrorResidual:
		return "ErrorResidual"
	case FeatureEmbedding:
		return "Embedding"
	case FeatureLogit:
		return "Logit"
	default:
		return "Other"
	}
}

// WireName returns the upstream file representation.
func (f FeatureType) WireName() string {
	switch f {
	case FeatureTranscoder:
		return wireTranscoder
	case FeatureErrorResidual:
		return wireErrorResidual
	case FeatureEmbedding:
		return wireEmbedding
	case FeatureLogit:
		return wireLogit
	default:
		return "other"
	}
}

// MarshalText renders the Go-style name; it is used for map keys.
func (f FeatureType) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f FeatureType) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.WireName())
}

func (f *FeatureType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("feature_type must be a string: %w", err)
	}
	*f = ParseFeatureType(s)
	return nil
}

// Node is a single vertex of an attribution graph.
type Node struct {
	ID               string      `json:"node_id"`
	FeatureType      FeatureType `json:"feature_type"`
	Layer            string      `json:"layer"`
	CtxIdx           int         `json:"ctx_idx"`
	FeatureIndex     int         `json:"feature"`
	TokenProbability float64     `json:"token_prob"`
}

// LayerNumber converts the layer label into its sort value:
// "E" is 0, integer strings are their value, anything else is UnparsableLayer.
func (n *Node) LayerNumber() int {
	if n.Layer == EmbeddingLayer {
		return 0
	}
	v, err := strconv.Atoi(n.Layer)
	if err != nil {
		return UnparsableLayer
	}
	return v
}

// Edge is a weighted directed connection from Source to Target.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// Graph is an attribution graph for one model input.
type Graph struct {
	Nodes    []Node         `json:"nodes"`
	Links    []Edge         `json:"links"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// ValidationError represents an aggregation of validation issues.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return fmt.Sprintf("graph validation failed: %s", v.Errors[0])
	}
	return fmt.Sprintf("graph validation failed with %d errors: %s", len(v.Errors), strings.Join(v.Errors, "; "))
}

// ErrNilGraph is returned when a nil graph is validated.
var ErrNilGraph = errors.New("graph is nil")

// Validate checks the structural preconditions the scoring pipeline relies on:
// non-empty unique node ids and finite numeric fields.
// Edges whose endpoints are missing are not an error; they are dropped when
// the adjacency matrix is built.
func (g *Graph) Validate() error {
	if g == nil {
		return ErrNilGraph
	}

	var errs []string
	seen := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Sprintf("node at position %d has an empty id", i))
			continue
		}
		if seen[n.ID] {
			errs = append(errs, fmt.Sprintf("duplicate node id: %s", n.ID))
		}
		seen[n.ID] = true

		if !isFinite(n.TokenProbability) {
			errs = append(errs, fmt.Sprintf("node %s has a non-finite token probability", n.ID))
		}
	}

	for i, e := range g.Links {
		if !isFinite(e.Weight) {
			errs = append(errs, fmt.Sprintf("link %d (%s -> %s) has a non-finite weight", i, e.Source, e.Target))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

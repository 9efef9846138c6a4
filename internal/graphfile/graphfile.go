// Package graphfile reads and writes graph definitions as YAML documents,
// the format the canvas backend exchanges with the engine.
package graphfile

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/flowgraph/internal/graph"
	"github.com/petrijr/flowgraph/pkg/api"
)

// graphDoc is the YAML shape of a graph definition. It mirrors api.Graph
// but stays a separate type so the wire format can evolve independently.
type graphDoc struct {
	Name  string    `yaml:"name"`
	Nodes []nodeDoc `yaml:"nodes"`
	Edges []edgeDoc `yaml:"edges"`
}

type nodeDoc struct {
	ID       string         `yaml:"id"`
	Kind     string         `yaml:"kind"`
	Category string         `yaml:"category,omitempty"`
	Config   map[string]any `yaml:"config,omitempty"`
	Inputs   []portDoc      `yaml:"inputs,omitempty"`
	Outputs  []portDoc      `yaml:"outputs,omitempty"`
}

type portDoc struct {
	ID       string `yaml:"id"`
	DataType string `yaml:"data_type,omitempty"`
	Label    string `yaml:"label,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

type edgeDoc struct {
	ID         string `yaml:"id,omitempty"`
	Source     string `yaml:"source"`
	SourcePort string `yaml:"source_port,omitempty"`
	Target     string `yaml:"target"`
	TargetPort string `yaml:"target_port,omitempty"`
	Kind       string `yaml:"kind,omitempty"`
	Branch     string `yaml:"branch,omitempty"`
}

// Parse decodes a YAML graph document and validates the result. A graph
// that fails validation is rejected here, before it can reach a store.
func Parse(r io.Reader) (api.Graph, error) {
	var doc graphDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return api.Graph{}, fmt.Errorf("parse graph: %w", err)
	}
	g := fromDoc(doc)
	if err := graph.Validate(&g); err != nil {
		return api.Graph{}, err
	}
	return g, nil
}

// Load reads and validates a graph definition from a file.
func Load(path string) (api.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return api.Graph{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Encode writes a graph definition as YAML.
func Encode(w io.Writer, g api.Graph) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(toDoc(g))
}

// Save writes a graph definition to a file, replacing any previous
// content.
func Save(path string, g api.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fromDoc(doc graphDoc) api.Graph {
	g := api.Graph{Name: doc.Name}
	for _, n := range doc.Nodes {
		node := api.Node{
			ID:       n.ID,
			Kind:     api.NodeKind(n.Kind),
			Category: n.Category,
			Config:   n.Config,
		}
		for _, p := range n.Inputs {
			node.Inputs = append(node.Inputs, api.Port{
				ID:        p.ID,
				Direction: api.DirectionIn,
				DataType:  p.DataType,
				Label:     p.Label,
				Required:  p.Required,
			})
		}
		for _, p := range n.Outputs {
			node.Outputs = append(node.Outputs, api.Port{
				ID:        p.ID,
				Direction: api.DirectionOut,
				DataType:  p.DataType,
				Label:     p.Label,
				Required:  p.Required,
			})
		}
		g.Nodes = append(g.Nodes, node)
	}
	for _, e := range doc.Edges {
		kind := api.EdgeKind(e.Kind)
		if e.Kind == "" {
			kind = api.EdgeData
		}
		g.Edges = append(g.Edges, api.Edge{
			ID:         e.ID,
			SourceNode: e.Source,
			SourcePort: e.SourcePort,
			TargetNode: e.Target,
			TargetPort: e.TargetPort,
			Kind:       kind,
			Branch:     api.BranchLabel(e.Branch),
		})
	}
	return g
}

func toDoc(g api.Graph) graphDoc {
	doc := graphDoc{Name: g.Name}
	for _, n := range g.Nodes {
		node := nodeDoc{
			ID:       n.ID,
			Kind:     string(n.Kind),
			Category: n.Category,
			Config:   n.Config,
		}
		for _, p := range n.Inputs {
			node.Inputs = append(node.Inputs, portDoc{
				ID:       p.ID,
				DataType: p.DataType,
				Label:    p.Label,
				Required: p.Required,
			})
		}
		for _, p := range n.Outputs {
			node.Outputs = append(node.Outputs, portDoc{
				ID:       p.ID,
				DataType: p.DataType,
				Label:    p.Label,
				Required: p.Required,
			})
		}
		doc.Nodes = append(doc.Nodes, node)
	}
	for _, e := range g.Edges {
		doc.Edges = append(doc.Edges, edgeDoc{
			ID:         e.ID,
			Source:     e.SourceNode,
			SourcePort: e.SourcePort,
			Target:     e.TargetNode,
			TargetPort: e.TargetPort,
			Kind:       string(e.Kind),
			Branch:     string(e.Branch),
		})
	}
	return doc
}

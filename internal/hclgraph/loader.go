// Package hclgraph loads workflow graph definitions from .hcl files so they
// can be registered at startup, ahead of any transport traffic.
//
// The block layout mirrors the wire shape of a graph:
//
//	graph "code_review" {
//	  start_node = "extract"
//
//	  node "extract" {
//	    function = "extract_functions"
//	  }
//
//	  edge "extract" "analyze" {}
//
//	  conditional_edge "check_quality" {
//	    condition    = "quality_score >= threshold"
//	    true_target  = "END"
//	    false_target = "analyze"
//	  }
//	}
package hclgraph

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/flowgridgo/internal/condition"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

type graphFile struct {
	Graphs []*graphBlock `hcl:"graph,block"`
}

type graphBlock struct {
	Name      string                  `hcl:"name,label"`
	StartNode string                  `hcl:"start_node,optional"`
	Nodes     []*nodeBlock            `hcl:"node,block"`
	Edges     []*edgeBlock            `hcl:"edge,block"`
	CondEdges []*conditionalEdgeBlock `hcl:"conditional_edge,block"`
}

type nodeBlock struct {
	Name     string    `hcl:"name,label"`
	Function string    `hcl:"function"`
	Params   cty.Value `hcl:"params,optional"`
}

type edgeBlock struct {
	From string `hcl:"from,label"`
	To   string `hcl:"to,label"`
}

type conditionalEdgeBlock struct {
	Source      string `hcl:"source,label"`
	Condition   string `hcl:"condition"`
	TrueTarget  string `hcl:"true_target"`
	FalseTarget string `hcl:"false_target"`
}

// LoadPath loads every graph defined by path, which may be a single .hcl
// file or a directory searched recursively.
func LoadPath(ctx context.Context, path string) ([]*schema.GraphDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("graphs path: %w", err)
	}

	var files []string
	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(p, ".hcl") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking graphs directory: %w", err)
		}
	} else {
		files = []string{path}
	}

	var defs []*schema.GraphDefinition
	for _, file := range files {
		fileDefs, err := decodeFile(ctx, file)
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}

// decodeFile parses and decodes a single HCL graph file.
func decodeFile(ctx context.Context, filePath string) ([]*schema.GraphDefinition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding graph file.", "path", filePath)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filePath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %s", filePath, diags.Error())
	}

	var parsed graphFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %s", filePath, diags.Error())
	}

	defs := make([]*schema.GraphDefinition, 0, len(parsed.Graphs))
	for _, block := range parsed.Graphs {
		def, err := block.definition(ctx)
		if err != nil {
			return nil, fmt.Errorf("graph %q in %s: %w", block.Name, filePath, err)
		}
		defs = append(defs, def)
	}
	logger.Debug("Successfully decoded graph file.", "path", filePath, "graphs_found", len(defs))
	return defs, nil
}

// definition converts a decoded block into a compiled GraphDefinition,
// preserving node declaration order.
func (b *graphBlock) definition(ctx context.Context) (*schema.GraphDefinition, error) {
	def := &schema.GraphDefinition{
		Name:             b.Name,
		StartNode:        b.StartNode,
		Edges:            make(map[string]string, len(b.Edges)),
		ConditionalEdges: make(map[string]*schema.ConditionalEdge, len(b.CondEdges)),
	}

	for _, node := range b.Nodes {
		cfg := &schema.NodeConfig{Function: node.Function}
		if node.Params != cty.NilVal && !node.Params.IsNull() {
			params, err := condition.FromCty(node.Params)
			if err != nil {
				return nil, fmt.Errorf("node %q params: %w", node.Name, err)
			}
			asMap, ok := params.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("node %q params: expected an object", node.Name)
			}
			cfg.Params = asMap
		}
		def.Nodes.Add(node.Name, cfg)
	}

	for _, edge := range b.Edges {
		def.Edges[edge.From] = edge.To
	}

	for _, edge := range b.CondEdges {
		def.ConditionalEdges[edge.Source] = &schema.ConditionalEdge{
			Condition:   edge.Condition,
			TrueTarget:  edge.TrueTarget,
			FalseTarget: edge.FalseTarget,
		}
	}

	def.Compile(ctx)
	return def, nil
}

package document

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/cellgrid/internal/ctxlog"
	"github.com/vk/cellgrid/internal/value"
)

// Extension is the file extension of document files.
const Extension = ".hcl"

// RemoteContext declares an out-of-process language runtime.
type RemoteContext struct {
	Name               string
	URL                string
	Namespace          string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Model is everything the document files declare.
type Model struct {
	Contexts []RemoteContext
	Nodes    []*Node
}

// fileRoot is used to decode all top-level blocks of a file.
type fileRoot struct {
	Contexts []*contextBlock `hcl:"context,block"`
	Cells    []*cellBlock    `hcl:"cell,block"`
	Inputs   []*inputBlock   `hcl:"input,block"`
	Remain   hcl.Body        `hcl:",remain"`
}

type contextBlock struct {
	Name               string `hcl:"name,label"`
	URL                string `hcl:"url"`
	Namespace          string `hcl:"namespace,optional"`
	Timeout            string `hcl:"timeout,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}

type cellBlock struct {
	ID       string `hcl:"id,label"`
	Source   string `hcl:"source,optional"`
	Language string `hcl:"language,optional"`
	Code     string `hcl:"code,optional"`
	Inline   bool   `hcl:"inline,optional"`
}

type inputBlock struct {
	ID    string         `hcl:"id,label"`
	Kind  string         `hcl:"kind"`
	Name  string         `hcl:"name,optional"`
	Value hcl.Expression `hcl:"value,optional"`
}

// Loader reads documents from HCL files.
type Loader struct{}

// NewLoader creates a document loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every document file under paths. Directories are walked for
// files with Extension. Node ids and context names must be unique across all
// files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Document loader started.", "path_count", len(paths))

	files, err := l.findFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered document files.", "count", len(files))

	model := &Model{}
	ids := make(map[string]string)
	contexts := make(map[string]string)
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse document file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode document file %s: %w", file, diags)
		}

		for _, block := range root.Contexts {
			if prev, ok := contexts[block.Name]; ok {
				return nil, fmt.Errorf("%s: context %q is already declared in %s", file, block.Name, prev)
			}
			contexts[block.Name] = file
			rc, err := translateContext(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Contexts = append(model.Contexts, rc)
		}

		claim := func(id string) error {
			if prev, ok := ids[id]; ok {
				return fmt.Errorf("%s: node %q is already declared in %s", file, id, prev)
			}
			ids[id] = file
			return nil
		}
		for _, block := range root.Cells {
			if err := claim(block.ID); err != nil {
				return nil, err
			}
			model.Nodes = append(model.Nodes, translateCell(block))
		}
		for _, block := range root.Inputs {
			if err := claim(block.ID); err != nil {
				return nil, err
			}
			n, err := translateInput(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Nodes = append(model.Nodes, n)
		}
	}

	logger.Debug("Document loading complete.", "contexts", len(model.Contexts), "nodes", len(model.Nodes))
	return model, nil
}

func translateContext(block *contextBlock) (RemoteContext, error) {
	rc := RemoteContext{
		Name:               block.Name,
		URL:                block.URL,
		Namespace:          block.Namespace,
		InsecureSkipVerify: block.InsecureSkipVerify,
	}
	if block.Timeout != "" {
		d, err := time.ParseDuration(block.Timeout)
		if err != nil {
			return RemoteContext{}, fmt.Errorf("context %q: invalid timeout: %w", block.Name, err)
		}
		rc.Timeout = d
	}
	return rc, nil
}

func translateCell(block *cellBlock) *Node {
	typ := Cell
	if block.Inline {
		typ = InlineCell
	}
	return &Node{
		ID:       block.ID,
		Type:     typ,
		Language: block.Language,
		Source:   block.Source,
		Code:     block.Code,
	}
}

func translateInput(block *inputBlock) (*Node, error) {
	typ, ok := ParseNodeType(block.Kind)
	if !ok || !typ.IsInput() {
		return nil, fmt.Errorf("input %q: unknown kind %q", block.ID, block.Kind)
	}
	n := &Node{ID: block.ID, Type: typ, Name: block.Name}
	if block.Value == nil {
		return n, nil
	}
	v, diags := block.Value.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("input %q: %w", block.ID, diags)
	}
	native, err := value.FromCty(v)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", block.ID, err)
	}
	n.Value = native
	return n, nil
}

// findFiles returns the document files in paths, each once, in walk order.
func (l *Loader) findFiles(paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == Extension {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

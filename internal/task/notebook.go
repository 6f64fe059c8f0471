package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// defaultNotebookCommand executes a notebook in place; the notebook path
// is appended as the final argument.
var defaultNotebookCommand = []string{
	"jupyter", "nbconvert", "--to", "notebook", "--execute", "--inplace",
}

// Notebook runs a notebook artifact in place. The optional preprocess
// hook sees (and may mutate) the artifact before execution, and the
// mutated artifact is what the success hook receives as output. The
// artifact handle is not retained after the run.
type Notebook struct {
	Path       string
	Preprocess func(doc *NotebookDoc) error
	// Command overrides the executing command, mainly for tests.
	Command []string
}

// NotebookDoc is a notebook artifact loaded from disk.
type NotebookDoc struct {
	Path    string
	Content map[string]any
}

// LoadNotebook parses the notebook JSON at path.
func LoadNotebook(path string) (*NotebookDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notebook %s: %w", path, err)
	}
	var content map[string]any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("parse notebook %s: %w", path, err)
	}
	return &NotebookDoc{Path: path, Content: content}, nil
}

// Save writes the artifact back to its path.
func (d *NotebookDoc) Save() error {
	data, err := json.MarshalIndent(d.Content, "", " ")
	if err != nil {
		return fmt.Errorf("encode notebook %s: %w", d.Path, err)
	}
	if err := os.WriteFile(d.Path, data, 0o644); err != nil {
		return fmt.Errorf("write notebook %s: %w", d.Path, err)
	}
	return nil
}

func (n Notebook) Run(ctx context.Context, params map[string]any) (any, error) {
	doc, err := LoadNotebook(n.Path)
	if err != nil {
		return nil, err
	}
	if n.Preprocess != nil {
		if err := n.Preprocess(doc); err != nil {
			return nil, fmt.Errorf("preprocess notebook %s: %w", n.Path, err)
		}
		if err := doc.Save(); err != nil {
			return nil, err
		}
	}

	command := n.Command
	if len(command) == 0 {
		command = defaultNotebookCommand
	}
	args := append(append([]string{}, command[1:]...), n.Path)
	cmd := exec.CommandContext(ctx, command[0], args...) // #nosec G204
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("execute notebook %s: %w: %s", n.Path, err, strings.TrimSpace(string(out)))
	}

	// Reload so the success hook sees the executed artifact.
	return LoadNotebook(n.Path)
}

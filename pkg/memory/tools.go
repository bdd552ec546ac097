package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/xeipuuv/gojsonschema"
)

// MemorySearchParams defines parameters for memory_search tool
type MemorySearchParams struct {
	Query      string   `json:"query"`
	MaxResults int      `json:"max_results,omitempty"`
	MinScore   *float64 `json:"min_score,omitempty"`
}

// MemorySearchResult represents the result of a memory search
type MemorySearchResult struct {
	Results []SearchResult `json:"results"`
	Query   string         `json:"query"`
	Count   int            `json:"count"`
}

// MemorySearch searches memory files by query
func MemorySearch(ctx context.Context, manager *Manager, params MemorySearchParams) (*MemorySearchResult, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	results, err := manager.Search(ctx, params.Query, &SearchOptions{
		MaxResults: params.MaxResults,
		MinScore:   params.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return &MemorySearchResult{
		Results: results,
		Query:   params.Query,
		Count:   len(results),
	}, nil
}

// MemoryGetParams defines parameters for memory_get tool
type MemoryGetParams struct {
	Path  string `json:"path"`
	From  int    `json:"from,omitempty"`
	Lines int    `json:"lines,omitempty"`
}

// MemoryGet reads a line window from a memory file
func MemoryGet(ctx context.Context, manager *Manager, params MemoryGetParams) (*FileSlice, error) {
	if params.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return manager.ReadFile(params.Path, params.From, params.Lines)
}

// MemoryWriteParams defines parameters for memory_write tool
type MemoryWriteParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// MemoryWriteResult represents the result of a memory write
type MemoryWriteResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
	Created      bool   `json:"created"`
}

// MemoryWrite creates or updates a memory file
func MemoryWrite(ctx context.Context, manager *Manager, params MemoryWriteParams) (*MemoryWriteResult, error) {
	fullPath, err := manager.documentPath(params.Path)
	if err != nil {
		return nil, err
	}

	_, err = os.Stat(fullPath)
	created := os.IsNotExist(err)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	err = os.WriteFile(fullPath, []byte(params.Content), 0644)
	observability.RecordDocumentAudit(ctx, "write", params.Path, tracing.GetSessionKey(ctx), err,
		map[string]interface{}{"bytes": len(params.Content), "created": created})
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	// The watcher may be disabled
	manager.MarkDirty()

	return &MemoryWriteResult{
		Path:         filepath.ToSlash(params.Path),
		BytesWritten: len(params.Content),
		Created:      created,
	}, nil
}

// MemoryDeleteParams defines parameters for memory_delete tool
type MemoryDeleteParams struct {
	Path string `json:"path"`
}

// MemoryDeleteResult represents the result of a memory delete
type MemoryDeleteResult struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
}

// MemoryDelete deletes a memory file
func MemoryDelete(ctx context.Context, manager *Manager, params MemoryDeleteParams) (*MemoryDeleteResult, error) {
	fullPath, err := manager.documentPath(params.Path)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return &MemoryDeleteResult{Path: params.Path, Deleted: false}, nil
		}
		observability.RecordDocumentAudit(ctx, "delete", params.Path, tracing.GetSessionKey(ctx), err, nil)
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}
	observability.RecordDocumentAudit(ctx, "delete", params.Path, tracing.GetSessionKey(ctx), nil, nil)

	manager.MarkDirty()

	return &MemoryDeleteResult{
		Path:    filepath.ToSlash(params.Path),
		Deleted: true,
	}, nil
}

// MemoryListParams defines parameters for memory_list tool
type MemoryListParams struct {
	Pattern string `json:"pattern,omitempty"` // Optional glob pattern
}

// MemoryFileInfo represents information about a memory file
type MemoryFileInfo struct {
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	ModifiedTime time.Time `json:"modified_time"`
}

// MemoryListResult represents the result of a memory list
type MemoryListResult struct {
	Files []MemoryFileInfo `json:"files"`
	Count int              `json:"count"`
}

// MemoryList lists the memory document set
func MemoryList(ctx context.Context, manager *Manager, params MemoryListParams) (*MemoryListResult, error) {
	paths, _ := listMemoryFiles(manager.cfg.WorkspacePath, manager.cfg.ExtraPaths)

	files := []MemoryFileInfo{}
	for _, abs := range paths {
		rel := relativeDocPath(manager.cfg.WorkspacePath, abs)
		if params.Pattern != "" {
			matched, err := filepath.Match(params.Pattern, rel)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		files = append(files, MemoryFileInfo{
			Path:         rel,
			SizeBytes:    info.Size(),
			ModifiedTime: info.ModTime(),
		})
	}

	return &MemoryListResult{
		Files: files,
		Count: len(files),
	}, nil
}

// documentPath resolves rel to an absolute path inside the document set.
func (m *Manager) documentPath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if err := ValidateMemoryPath(rel); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathNotAllowed, err)
	}
	if !isMemoryDocumentPath(m.cfg.WorkspacePath, rel, m.cfg.ExtraPaths) {
		return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, rel)
	}
	return filepath.Join(m.cfg.WorkspacePath, filepath.FromSlash(rel)), nil
}

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Minimum     *float64    `json:"minimum,omitempty"`
	Maximum     *float64    `json:"maximum,omitempty"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Tool is an agent-callable memory operation.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`

	schema *gojsonschema.Schema
}

// JSONSchema returns the parameter schema as a JSON-compatible map.
func (t *Tool) JSONSchema() map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range t.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if param.Minimum != nil {
			paramSchema["minimum"] = *param.Minimum
		}
		if param.Maximum != nil {
			paramSchema["maximum"] = *param.Maximum
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Invoke validates params against the tool schema and runs the handler.
func (t *Tool) Invoke(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	if t.schema == nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.JSONSchema()))
		if err != nil {
			return nil, fmt.Errorf("invalid schema for tool %s: %w", t.Name, err)
		}
		t.schema = schema
	}

	result, err := t.schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		msgs := []string{}
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("validation errors: %v", msgs)
	}

	start := time.Now()
	out, err := t.Handler(ctx, params)
	observability.RecordToolExecution(t.Name, time.Since(start), err == nil)
	return out, err
}

func floatPtr(f float64) *float64 { return &f }

// Tools returns the memory tools bound to m.
func (m *Manager) Tools() []*Tool {
	return []*Tool{
		{
			Name:        "memory_search",
			Description: "Search memory notes by query using semantic and keyword matching",
			Parameters: []ToolParameter{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
				{
					Name:        "max_results",
					Type:        "integer",
					Description: fmt.Sprintf("Maximum number of results (default: %d)", m.cfg.Query.MaxResults),
					Minimum:     floatPtr(1),
				},
				{
					Name:        "min_score",
					Type:        "number",
					Description: fmt.Sprintf("Minimum relevance score (default: %g)", m.cfg.Query.MinScore),
					Minimum:     floatPtr(0),
					Maximum:     floatPtr(1),
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				var p MemorySearchParams
				p.Query, _ = params["query"].(string)
				p.MaxResults = intParam(params, "max_results")
				if ms, ok := numberParam(params, "min_score"); ok {
					p.MinScore = &ms
				}
				return MemorySearch(ctx, m, p)
			},
		},
		{
			Name:        "memory_get",
			Description: "Read lines from a memory file returned by memory_search",
			Parameters: []ToolParameter{
				{Name: "path", Type: "string", Description: "Workspace-relative path of the memory file", Required: true},
				{Name: "from", Type: "integer", Description: "First line to read, 1-based (default: 1)", Minimum: floatPtr(1)},
				{Name: "lines", Type: "integer", Description: "Number of lines to read (default: all)", Minimum: floatPtr(1)},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				var p MemoryGetParams
				p.Path, _ = params["path"].(string)
				p.From = intParam(params, "from")
				p.Lines = intParam(params, "lines")
				return MemoryGet(ctx, m, p)
			},
		},
		{
			Name:        "memory_write",
			Description: "Create or update a memory file (MEMORY.md or a markdown file under memory/)",
			Parameters: []ToolParameter{
				{Name: "path", Type: "string", Description: "Relative path to the file (must end with .md)", Required: true},
				{Name: "content", Type: "string", Description: "File content", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				var p MemoryWriteParams
				p.Path, _ = params["path"].(string)
				p.Content, _ = params["content"].(string)
				return MemoryWrite(ctx, m, p)
			},
		},
		{
			Name:        "memory_delete",
			Description: "Delete a memory file",
			Parameters: []ToolParameter{
				{Name: "path", Type: "string", Description: "Relative path to the file", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				var p MemoryDeleteParams
				p.Path, _ = params["path"].(string)
				return MemoryDelete(ctx, m, p)
			},
		},
		{
			Name:        "memory_list",
			Description: "List all memory files",
			Parameters: []ToolParameter{
				{Name: "pattern", Type: "string", Description: "Optional glob pattern to filter files"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				var p MemoryListParams
				p.Pattern, _ = params["pattern"].(string)
				return MemoryList(ctx, m, p)
			},
		},
	}
}

// ToolByName returns the named tool from tools.
func ToolByName(tools []*Tool, name string) (*Tool, error) {
	for _, t := range tools {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, errors.New("unknown memory tool: " + name)
}

// numberParam reads a JSON number that may arrive as float64 or int.
func numberParam(params map[string]interface{}, name string) (float64, bool) {
	switch v := params[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func intParam(params map[string]interface{}, name string) int {
	v, _ := numberParam(params, name)
	return int(v)
}

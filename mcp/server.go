// Package mcp provides the MCP (Model Context Protocol) server for cegar-go.
//
// The server speaks JSON-RPC over stdio. It lets a client check models and
// browse the run history.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/cegar-go/internal/explicit"
	"github.com/Benny93/cegar-go/internal/storage"
)

const (
	serverName    = "cegar-go"
	serverVersion = "0.1.0"

	defaultHistoryLimit = 20
)

// Checker runs checks and records them.
type Checker interface {
	Check(ctx context.Context, path string) (*storage.RunRecord, error)
	CheckModel(ctx context.Context, m *explicit.Model, path string) (*storage.RunRecord, error)
}

// RunStore is the part of the history store the server reads.
type RunStore interface {
	GetRun(ctx context.Context, id string) (*storage.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*storage.RunRecord, error)
}

// Server represents the MCP server.
type Server struct {
	checker Checker
	runs    RunStore
	info    *mcp.Implementation
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server.
func NewServer(checker Checker, runs RunStore) *Server {
	return &Server{
		checker: checker,
		runs:    runs,
		info: &mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
	}
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "cegar_check",
			Description: "Check whether the error location of a model is reachable. Pass a model file path or the model itself as YAML.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"path":  {Type: "string", Description: "Path of a model file"},
					"model": {Type: "string", Description: "Model as YAML text"},
				},
			},
		},
		{
			Name:        "cegar_history",
			Description: "List recorded runs, newest first.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"limit": {Type: "integer", Description: "Maximum number of runs"},
				},
			},
		},
		{
			Name:        "cegar_run",
			Description: "Show one recorded run: outcome, precision, counterexample and iterations.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Run id or a unique prefix of it"},
				},
				Required: []string{"id"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "cegar://runs",
			Name:        "Run History",
			Description: "Recent checks and their outcomes",
			MimeType:    "text/plain",
		},
		{
			URI:         "cegar://schema",
			Name:        "Model Schema",
			Description: "JSON schema of the model files cegar_check accepts",
			MimeType:    "application/json",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "cegar_check":
		path, _ := args["path"].(string)
		model, _ := args["model"].(string)
		return s.handleCheck(ctx, path, model)
	case "cegar_history":
		limit, _ := args["limit"].(float64)
		if limit == 0 {
			limit = defaultHistoryLimit
		}
		return s.handleHistory(ctx, int(limit))
	case "cegar_run":
		id, _ := args["id"].(string)
		return s.handleRun(ctx, id)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "cegar://runs":
		return s.handleHistory(ctx, 0)
	case "cegar://schema":
		data, err := json.MarshalIndent(ModelSchema(), "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// One message per line: no indentation

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err == io.EOF {
			return nil
		}
		if err != nil && err != io.EOF {
			return err
		}

		var req map[string]any
		if jerr := json.Unmarshal(line, &req); jerr == nil {
			// Notifications carry no id and get no response
			if _, ok := req["id"]; ok {
				if eerr := encoder.Encode(s.handleRequest(ctx, req)); eerr != nil {
					return eerr
				}
			}
		}
		if err == io.EOF {
			return nil
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "ping":
		return result(id, map[string]any{})
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return result(id, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo": map[string]any{
			"name":    s.info.Name,
			"version": s.info.Version,
		},
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"listChanged": false},
		},
	})
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		_ = json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}
	return result(id, map[string]any{"tools": toolList})
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	text, err := s.CallTool(ctx, name, args)
	if err != nil {
		// Tool failures are reported in the result, not as protocol errors
		return result(id, map[string]any{
			"content": []map[string]any{{"type": "text", "text": err.Error()}},
			"isError": true,
		})
	}
	return result(id, map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	})
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}
	return result(id, map[string]any{"resources": resourceList})
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)
	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	mimeType := "text/plain"
	for _, res := range s.ListResources() {
		if res.URI == uri {
			mimeType = res.MimeType
		}
	}
	return result(id, map[string]any{
		"contents": []map[string]any{
			{"uri": uri, "mimeType": mimeType, "text": content},
		},
	})
}

// Tool Handlers

func (s *Server) handleCheck(ctx context.Context, path, model string) (string, error) {
	var (
		rec *storage.RunRecord
		err error
	)
	switch {
	case path != "" && model != "":
		return "", errors.New("pass either path or model, not both")
	case path != "":
		rec, err = s.checker.Check(ctx, path)
	case model != "":
		m, perr := explicit.Parse([]byte(model))
		if perr != nil {
			return "", perr
		}
		rec, err = s.checker.CheckModel(ctx, m, "")
	default:
		return "", errors.New("path or model is required")
	}
	if err != nil {
		return "", fmt.Errorf("check failed: %w", err)
	}
	return formatRun(rec), nil
}

func (s *Server) handleHistory(ctx context.Context, limit int) (string, error) {
	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# Run History\n\n")
	if len(runs) == 0 {
		sb.WriteString("No runs recorded.\n")
		return sb.String(), nil
	}
	for _, r := range runs {
		fmt.Fprintf(&sb, "- `%s` %s: **%s** (%d iterations, %s)\n",
			r.ShortID(), r.Model, r.Outcome, r.Iterations, r.CreatedAt.Format(time.RFC3339))
	}
	return sb.String(), nil
}

func (s *Server) handleRun(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", errors.New("id is required")
	}
	rec, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return "", err
	}
	return formatRun(rec), nil
}

func formatRun(r *storage.RunRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s: %s\n\n", r.Model, r.Outcome)
	fmt.Fprintf(&sb, "**Run:** %s\n", r.ID)
	if r.ModelPath != "" {
		fmt.Fprintf(&sb, "**File:** %s\n", r.ModelPath)
	}
	fmt.Fprintf(&sb, "**Search:** %s", r.Config.Search)
	if r.Config.Search == "astar" {
		fmt.Fprintf(&sb, " (%s)", r.Config.Policy)
	}
	sb.WriteString("\n")
	if r.Error != "" {
		fmt.Fprintf(&sb, "**Error:** %s\n", r.Error)
	}
	fmt.Fprintf(&sb, "**Iterations:** %d\n", r.Iterations)
	fmt.Fprintf(&sb, "**ARG size:** %d\n", r.ARGSize)
	if r.Prec != "" {
		fmt.Fprintf(&sb, "**Precision:** %s\n", r.Prec)
	}
	fmt.Fprintf(&sb, "**Time:** %s (abstraction %s, refinement %s)\n", r.Total, r.Abstractor, r.Refiner)

	if len(r.Cex) > 0 {
		sb.WriteString("\n## Counterexample\n\n")
		for i, st := range r.Cex {
			fmt.Fprintf(&sb, "%d. %s\n", i, st)
		}
	}
	if len(r.Steps) > 0 {
		sb.WriteString("\n## Iterations\n\n")
		sb.WriteString("| # | Outcome | ARG | Unsafe | Depth |\n")
		sb.WriteString("|---|---------|-----|--------|-------|\n")
		for _, st := range r.Steps {
			fmt.Fprintf(&sb, "| %d | %s | %d | %d | %d |\n", st.Index, st.Outcome, st.ARGSize, st.Unsafe, st.Depth)
		}
	}
	return sb.String()
}

// ModelSchema describes the YAML model format.
func ModelSchema() *jsonschema.Schema {
	str := &jsonschema.Schema{Type: "string"}
	integer := &jsonschema.Schema{Type: "integer"}
	operand := func(ops ...any) *jsonschema.Schema {
		return &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"var":   str,
				"op":    {Type: "string", Enum: ops},
				"value": integer,
			},
			Required: []string{"var", "op", "value"},
		}
	}

	return &jsonschema.Schema{
		Title:       "cegar-go model",
		Description: "Control-flow automaton with integer variables; the check asks whether error is reachable from init.",
		Type:        "object",
		Properties: map[string]*jsonschema.Schema{
			"name":      {Type: "string", Description: "Shown in logs and run history"},
			"locations": {Type: "array", Items: str, Description: "Every control location"},
			"vars": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name":  str,
						"init":  integer,
						"bound": {Type: "integer", Description: "When positive, values stay in [0, bound) and increments wrap"},
					},
					Required: []string{"name"},
				},
			},
			"init":  {Type: "string", Description: "Initial location"},
			"error": {Type: "string", Description: "Location whose reachability is checked"},
			"edges": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"from":   str,
						"to":     str,
						"guard":  operand(string(explicit.OpEq), string(explicit.OpNe)),
						"update": operand(string(explicit.OpSet), string(explicit.OpInc)),
					},
					Required: []string{"from", "to"},
				},
			},
		},
		Required: []string{"locations", "init", "error", "edges"},
	}
}

// Helper functions

func result(id any, res map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  res,
	}
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

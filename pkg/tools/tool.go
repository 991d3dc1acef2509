// Package tools defines the XML-argument tool interface capture operations
// are exposed through.
package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
)

// Tool is one capture operation callable with XML arguments.
//
// Example call:
//
//	<tool>
//	<server_name>local</server_name>
//	<tool_name>browser_screenshot</tool_name>
//	<arguments>
//	  <url>https://example.com</url>
//	  <full_page>true</full_page>
//	</arguments>
//	</tool>
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "browser_screenshot")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	Schema() map[string]interface{}

	// Execute runs the tool with the given XML arguments.
	// Returns: (result string, metadata map, error)
	Execute(ctx context.Context, argumentsXML []byte) (string, map[string]interface{}, error)
}

// ToolCall is a parsed tool invocation.
type ToolCall struct {
	XMLName    xml.Name       `xml:"tool"`
	ServerName string         `xml:"server_name"`
	ToolName   string         `xml:"tool_name"`
	Arguments  ArgumentsBlock `xml:"arguments"`
}

// ArgumentsBlock holds the raw XML of the arguments element
type ArgumentsBlock struct {
	InnerXML []byte `xml:",innerxml"`
}

// GetArgumentsXML returns the arguments wrapped in <arguments> tags for unmarshaling.
func (tc *ToolCall) GetArgumentsXML() []byte {
	const prefix = "<arguments>"
	const suffix = "</arguments>"

	result := make([]byte, 0, len(prefix)+len(tc.Arguments.InnerXML)+len(suffix))
	result = append(result, prefix...)
	result = append(result, tc.Arguments.InnerXML...)
	result = append(result, suffix...)
	return result
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Set is a name-indexed collection of tools.
type Set struct {
	tools map[string]Tool
}

// NewSet builds a Set. Duplicate names are rejected.
func NewSet(list ...Tool) (*Set, error) {
	s := &Set{tools: make(map[string]Tool, len(list))}
	for _, t := range list {
		if _, exists := s.tools[t.Name()]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", t.Name())
		}
		s.tools[t.Name()] = t
	}
	return s, nil
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches a parsed call to its tool.
func (s *Set) Execute(ctx context.Context, call *ToolCall) (string, map[string]interface{}, error) {
	if err := ValidateToolCall(call); err != nil {
		return "", nil, err
	}
	t, ok := s.Get(call.ToolName)
	if !ok {
		return "", nil, fmt.Errorf("unknown tool: %s", call.ToolName)
	}
	return t.Execute(ctx, call.GetArgumentsXML())
}

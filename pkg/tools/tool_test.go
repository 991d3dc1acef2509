package tools

import (
	"context"
	"encoding/xml"
	"strings"
	"testing"
)

type echoTool struct{ name string }

func (e *echoTool) Name() string                   { return e.name }
func (e *echoTool) Description() string            { return "echoes its url argument" }
func (e *echoTool) Schema() map[string]interface{} { return BaseToolSchema(nil, nil) }

func (e *echoTool) Execute(_ context.Context, args []byte) (string, map[string]interface{}, error) {
	var in struct {
		XMLName xml.Name `xml:"arguments"`
		URL     string   `xml:"url"`
	}
	if err := UnmarshalXMLWithFallback(args, &in); err != nil {
		return "", nil, err
	}
	return in.URL, map[string]interface{}{"tool": e.name}, nil
}

func TestParseToolCall(t *testing.T) {
	text := `Taking a screenshot now.
<tool>
<tool_name>browser_screenshot</tool_name>
<arguments>
  <url>https://example.com/?a=1&b=2</url>
  <script><![CDATA[if (a < b && b > c) await captureImage()]]></script>
</arguments>
</tool>`

	call, err := ParseToolCall(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.ToolName != "browser_screenshot" {
		t.Errorf("expected tool name 'browser_screenshot', got '%s'", call.ToolName)
	}
	if call.ServerName != "local" {
		t.Errorf("expected default server name 'local', got '%s'", call.ServerName)
	}

	args := string(call.GetArgumentsXML())
	if !strings.HasPrefix(args, "<arguments>") || !strings.HasSuffix(args, "</arguments>") {
		t.Errorf("arguments not wrapped: %s", args)
	}
	if !strings.Contains(args, "captureImage") {
		t.Errorf("script missing from arguments: %s", args)
	}
}

func TestParseToolCall_Errors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{"no call", "just text", "no tool call found"},
		{"missing name", "<tool><arguments></arguments></tool>", "tool_name is required"},
		{"remote server", "<tool><server_name>mcp</server_name><tool_name>x</tool_name></tool>", "unsupported server_name"},
		{"malformed", "<tool><tool_name>x</tool_name><arguments><url></arguments></tool>", "failed to unmarshal"},
		{"too large", "<tool>" + strings.Repeat("a", maxXMLSize) + "</tool>", "exceeds maximum size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToolCall(tt.text)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestUnmarshalXMLWithFallback_EscapesBareAmpersands(t *testing.T) {
	var in struct {
		XMLName xml.Name `xml:"arguments"`
		URL     string   `xml:"url"`
	}
	data := []byte(`<arguments><url>https://example.com/?q=a&amp;b&c=&#38;d</url></arguments>`)
	if err := UnmarshalXMLWithFallback(data, &in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.URL != "https://example.com/?q=a&b&c=&d" {
		t.Errorf("unexpected url: %s", in.URL)
	}
}

func TestUnmarshalXMLWithFallback_LeavesCDATAAlone(t *testing.T) {
	var in struct {
		XMLName xml.Name `xml:"arguments"`
		URL     string   `xml:"url"`
		Script  string   `xml:"script"`
	}
	data := []byte(`<arguments><url>https://example.com/?a=1&b=2</url><script><![CDATA[if (a && b) await captureImage()]]></script></arguments>`)
	if err := UnmarshalXMLWithFallback(data, &in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.URL != "https://example.com/?a=1&b=2" {
		t.Errorf("unexpected url: %s", in.URL)
	}
	if in.Script != "if (a && b) await captureImage()" {
		t.Errorf("script was altered: %s", in.Script)
	}
}

func TestSet(t *testing.T) {
	set, err := NewSet(&echoTool{name: "b"}, &echoTool{name: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if names := set.Names(); strings.Join(names, ",") != "a,b" {
		t.Errorf("expected sorted names a,b, got %v", names)
	}

	call, err := ParseToolCall(`<tool><tool_name>a</tool_name><arguments><url>https://x.test</url></arguments></tool>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, meta, err := set.Execute(context.Background(), call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "https://x.test" || meta["tool"] != "a" {
		t.Errorf("unexpected result %q %v", out, meta)
	}

	call.ToolName = "missing"
	if _, _, err := set.Execute(context.Background(), call); err == nil || !strings.Contains(err.Error(), "unknown tool: missing") {
		t.Errorf("expected unknown tool error, got %v", err)
	}
}

func TestNewSet_RejectsDuplicates(t *testing.T) {
	if _, err := NewSet(&echoTool{name: "a"}, &echoTool{name: "a"}); err == nil {
		t.Error("expected duplicate name error")
	}
}

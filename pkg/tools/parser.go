package tools

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

const (
	defaultServerName = "local"
	maxXMLSize        = 10 * 1024 * 1024 // 10MB; scripts travel inside the call
)

var toolRegex = regexp.MustCompile(`(?s)<tool>.*?</tool>`)

// entityRegex matches ampersands that already start an XML entity.
var entityRegex = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|#\d+|#x[0-9a-fA-F]+);`)

// ParseToolCall extracts the first <tool> element from text. Scripts are
// best passed as CDATA:
//
//	<tool>
//	<tool_name>browser_snapshot</tool_name>
//	<arguments>
//	  <url>https://example.com</url>
//	  <script><![CDATA[await captureMarkup({ selector: "main" })]]></script>
//	</arguments>
//	</tool>
func ParseToolCall(text string) (*ToolCall, error) {
	if len(text) > maxXMLSize {
		return nil, fmt.Errorf("tool call XML exceeds maximum size of %d bytes", maxXMLSize)
	}

	match := toolRegex.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("no tool call found in text")
	}

	var call ToolCall
	if err := UnmarshalXMLWithFallback([]byte(strings.TrimSpace(match)), &call); err != nil {
		snippet := match
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return nil, fmt.Errorf("failed to unmarshal tool call XML: %w\nXML snippet: %s", err, snippet)
	}

	if call.ServerName == "" {
		call.ServerName = defaultServerName
	}
	if err := ValidateToolCall(&call); err != nil {
		return nil, err
	}
	return &call, nil
}

// ValidateToolCall checks if a ToolCall has all required fields.
func ValidateToolCall(tc *ToolCall) error {
	if tc == nil {
		return fmt.Errorf("tool call is nil")
	}
	if tc.ToolName == "" {
		return fmt.Errorf("tool_name is required")
	}
	if tc.ServerName != "" && tc.ServerName != defaultServerName {
		return fmt.Errorf("unsupported server_name: %s", tc.ServerName)
	}
	return nil
}

// UnmarshalXMLWithFallback unmarshals XML, retrying once with bare
// ampersands escaped. URLs with query strings are the usual offender.
func UnmarshalXMLWithFallback(data []byte, v interface{}) error {
	err := xml.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	return xml.Unmarshal(escapeBareAmpersands(data), v)
}

// escapeBareAmpersands escapes & outside CDATA sections unless it already
// starts an entity.
func escapeBareAmpersands(data []byte) []byte {
	const cdataOpen, cdataClose = "<![CDATA[", "]]>"
	text := string(data)

	entities := make(map[int]bool)
	for _, m := range entityRegex.FindAllStringIndex(text, -1) {
		entities[m[0]] = true
	}

	var b strings.Builder
	b.Grow(len(text) + 16)
	for i := 0; i < len(text); i++ {
		if strings.HasPrefix(text[i:], cdataOpen) {
			end := strings.Index(text[i:], cdataClose)
			if end < 0 {
				b.WriteString(text[i:])
				break
			}
			end += i + len(cdataClose)
			b.WriteString(text[i:end])
			i = end - 1
			continue
		}
		if text[i] == '&' && !entities[i] {
			b.WriteString("&amp;")
			continue
		}
		b.WriteByte(text[i])
	}
	return []byte(b.String())
}

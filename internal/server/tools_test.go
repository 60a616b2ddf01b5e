package server

import (
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expectedTools := []string{
		"omr_image_info",
		"omr_locate_sheet",
		"omr_detect_bubbles",
		"omr_parse_key",
		"omr_grade",
		"omr_view_question",
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("got %d tools, want %d", len(tools), len(expectedTools))
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("duplicate tool %s", tool.Name)
		}
		toolMap[tool.Name] = tool
	}
	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want object", tool.InputSchema["type"])
			}
			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema properties missing")
			}

			// Every required field must be declared
			required, _ := tool.InputSchema["required"].([]string)
			for _, field := range required {
				if _, ok := props[field]; !ok {
					t.Errorf("required field %s not in properties", field)
				}
			}
		})
	}
}

func TestToolDefinitions_ExecutorsExist(t *testing.T) {
	s := newTestServer()
	for _, tool := range GetToolDefinitions() {
		_, err := s.executeTool(tool.Name, nil)
		if err != nil && err.Error() == "unknown tool: "+tool.Name {
			t.Errorf("tool %s is listed but has no handler", tool.Name)
		}
	}
}

func TestGradingToolsShareOverrides(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		switch tool.Name {
		case "omr_detect_bubbles", "omr_grade", "omr_view_question":
		default:
			continue
		}
		props := tool.InputSchema["properties"].(map[string]interface{})
		for _, field := range []string{"path", "preset", "questions", "options", "rectified"} {
			if _, ok := props[field]; !ok {
				t.Errorf("%s: missing %s", tool.Name, field)
			}
		}
	}
}

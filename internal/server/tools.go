package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the photo or scan of the answer sheet",
	}
}

// gradingProperties are the per-call overrides shared by every tool that
// runs part of the grading pipeline.
func gradingProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": pathProperty(),
		"preset": map[string]interface{}{
			"type":        "string",
			"description": "Detection preset. Defaults to the server configuration.",
			"enum":        []string{"standard", "combined", "strict"},
		},
		"questions": map[string]interface{}{
			"type":        "integer",
			"description": "Number of questions on the sheet. 0 derives it from the key or the detected bubbles.",
			"minimum":     0,
		},
		"options": map[string]interface{}{
			"type":        "integer",
			"description": "Bubbles per question (e.g. 5 for A-E)",
			"minimum":     1,
		},
		"rectified": map[string]interface{}{
			"type":        "boolean",
			"description": "The image is already a flat, edge-to-edge scan of the sheet; skip sheet location",
			"default":     false,
		},
	}
}

// keyProperties describe the two ways of supplying an answer key.
func keyProperties(props map[string]interface{}) map[string]interface{} {
	props["key_path"] = map[string]interface{}{
		"type":        "string",
		"description": "Path to an answer key file (.json or .txt)",
	}
	props["key"] = map[string]interface{}{
		"description": "Inline answer key: a list of letters, a map of question to letter, or an object with a \"respuestas\"/\"answers\" field",
	}
	props["ambiguity"] = map[string]interface{}{
		"type":        "string",
		"description": "What to do when several bubbles of one question are marked",
		"enum":        []string{"highest_confidence", "flag"},
	}
	return props
}

func withProps(props map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		props[k] = v
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "omr_image_info",
			Description: "Load an image file and return its dimensions, format and file size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_locate_sheet",
			Description: "Find the answer sheet in a photo and return its four corners (top-left, top-right, bottom-right, bottom-left) and the rectified size. Optionally returns the flattened sheet as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the rectified sheet as base64 PNG",
						"default":     false,
					},
					"max_dimension": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side of the returned image. Default 800",
						"default":     800,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_detect_bubbles",
			Description: "Segment the bubbles of an answer sheet without grading it. Returns how many outlines were examined and accepted, and the bubble boxes in reading order.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(gradingProperties(), map[string]interface{}{
					"include_mask": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the binary ink mask as base64 PNG",
						"default":     false,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_parse_key",
			Description: "Parse an answer key and return it in canonical form. Accepts a file path, an inline JSON key or \"Question N: X\" text lines.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"key_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to an answer key file (.json or .txt)",
					},
					"key": map[string]interface{}{
						"description": "Inline JSON answer key",
					},
					"text": map[string]interface{}{
						"type":        "string",
						"description": "Answer key as \"Pregunta N: X\" or \"Question N: X\" lines",
					},
				},
			},
		},
		{
			Name:        "omr_grade",
			Description: "Grade a photographed or scanned answer sheet against an answer key. Returns the score, per-question selections with confidence, and warnings. Optionally returns the annotated sheet and a text report.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(keyProperties(gradingProperties()), map[string]interface{}{
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the annotated sheet as base64 PNG",
						"default":     false,
					},
					"max_dimension": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side of the returned image. Default 800",
						"default":     800,
					},
					"annotated_path": map[string]interface{}{
						"type":        "string",
						"description": "Also save the full-size annotated sheet to this path",
					},
					"report": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the plain-text grading report",
						"default":     false,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_view_question",
			Description: "Grade the sheet and return a zoomed crop of one question's bubble row from the annotated sheet, with that question's result. Use this to check a doubtful reading.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProps(keyProperties(gradingProperties()), map[string]interface{}{
					"question": map[string]interface{}{
						"type":        "integer",
						"description": "1-based question number",
						"minimum":     1,
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Zoom factor for the crop. Default 2.0",
						"default":     2.0,
					},
				}),
				"required": []string{"path", "question"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"strings"

	"github.com/ironsheep/omr-grader/internal/answerkey"
	"github.com/ironsheep/omr-grader/internal/detection"
	"github.com/ironsheep/omr-grader/internal/grading"
	"github.com/ironsheep/omr-grader/internal/imaging"
	"github.com/ironsheep/omr-grader/internal/omr"
	"github.com/ironsheep/omr-grader/internal/report"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "omr_grade", "omr_locate_sheet").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Info("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Resolves the grading configuration and answer key for the call
//  3. Loads images from cache as needed
//  4. Runs the detection or grading step it exposes
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	case "omr_image_info":
		return s.handleImageInfo(args)
	case "omr_locate_sheet":
		return s.handleLocateSheet(args)
	case "omr_detect_bubbles":
		return s.handleDetectBubbles(args)
	case "omr_parse_key":
		return s.handleParseKey(args)
	case "omr_grade":
		return s.handleGrade(args)
	case "omr_view_question":
		return s.handleViewQuestion(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Shared argument handling ===

type gradingArgs struct {
	Path      string `json:"path"`
	Preset    string `json:"preset"`
	Questions *int   `json:"questions"`
	Options   *int   `json:"options"`
	Rectified bool   `json:"rectified"`
}

type keyArgs struct {
	KeyPath   string                  `json:"key_path"`
	Key       json.RawMessage         `json:"key"`
	Ambiguity grading.AmbiguityPolicy `json:"ambiguity"`
}

// gradingConfig resolves the grading configuration for one call: the named preset
// or the server default, then the explicit overrides.
func (s *Server) gradingConfig(a gradingArgs, ambiguity grading.AmbiguityPolicy) (grading.Config, error) {
	cfg := s.config
	if a.Preset != "" {
		p, err := grading.Preset(a.Preset)
		if err != nil {
			return grading.Config{}, err
		}
		cfg = p
	}
	if a.Questions != nil {
		cfg.Questions = *a.Questions
	}
	if a.Options != nil {
		cfg.Options = *a.Options
	}
	if ambiguity != "" {
		cfg.Ambiguity = ambiguity
	}
	if err := cfg.Validate(); err != nil {
		return grading.Config{}, err
	}
	return cfg, nil
}

// key loads the answer key named by a, or returns nil when none is given.
func (a keyArgs) key() (*answerkey.Key, error) {
	inline := len(a.Key) > 0 && string(a.Key) != "null"
	switch {
	case a.KeyPath != "" && inline:
		return nil, fmt.Errorf("give either key_path or key, not both")
	case a.KeyPath != "":
		return answerkey.Load(a.KeyPath)
	case inline:
		return answerkey.Parse(a.Key)
	}
	return nil, nil
}

func (s *Server) loadImage(path string) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return s.cache.Load(path)
}

// sheet locates and rectifies the sheet, or wraps the whole image when the
// caller says it is already rectified.
func (s *Server) sheet(img image.Image, rectified bool, loc detection.LocatorConfig) (*detection.RectifiedSheet, error) {
	if rectified {
		return detection.FullFrame(img), nil
	}
	quad, err := detection.LocateDocument(img, loc)
	if err != nil {
		return nil, omr.FailedAt(omr.StageLocatingDocument, err)
	}
	sheet, err := detection.Rectify(img, quad)
	if err != nil {
		return nil, omr.FailedAt(omr.StageNormalizing, err)
	}
	return sheet, nil
}

func (s *Server) grade(a gradingArgs, k keyArgs) (*grading.Result, error) {
	cfg, err := s.gradingConfig(a, k.Ambiguity)
	if err != nil {
		return nil, err
	}
	key, err := k.key()
	if err != nil {
		return nil, err
	}
	g, err := grading.NewGrader(cfg, key, grading.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	if a.Rectified {
		return g.GradeRectified(context.Background(), img)
	}
	return g.Grade(context.Background(), img)
}

// === Image Information ===

type imageInfoArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageInfo(args json.RawMessage) (interface{}, error) {
	var a imageInfoArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

// === Sheet Location ===

type locateSheetArgs struct {
	Path         string `json:"path"`
	IncludeImage bool   `json:"include_image"`
	MaxDimension int    `json:"max_dimension"`
}

// LocateResult describes a located sheet.
type LocateResult struct {
	// Corners are ordered top-left, top-right, bottom-right, bottom-left.
	Corners detection.Quadrilateral `json:"corners"`

	// Width and Height are the rectified sheet size.
	Width  int `json:"width"`
	Height int `json:"height"`

	// AreaFraction is the share of the photo the sheet covers.
	AreaFraction float64 `json:"area_fraction"`

	Image *imaging.EncodedImage `json:"image,omitempty"`
}

func (s *Server) handleLocateSheet(args json.RawMessage) (interface{}, error) {
	var a locateSheetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.MaxDimension == 0 {
		a.MaxDimension = 800
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	sheet, err := s.sheet(img, false, s.config.Locator)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	res := &LocateResult{
		Corners:      sheet.Corners,
		Width:        sheet.Bounds().Dx(),
		Height:       sheet.Bounds().Dy(),
		AreaFraction: sheet.Corners.Area() / float64(b.Dx()*b.Dy()),
	}
	if a.IncludeImage {
		if res.Image, err = imaging.EncodePNG(sheet.Color, a.MaxDimension); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// === Bubble Detection ===

type detectBubblesArgs struct {
	gradingArgs
	IncludeMask bool `json:"include_mask"`
}

// BubblesResult describes a segmentation without grading.
type BubblesResult struct {
	// Candidates is the number of outlines examined; Accepted passed the
	// shape filter.
	Candidates int `json:"candidates"`
	Accepted   int `json:"accepted"`

	Thresholder string `json:"thresholder"`

	// InkCoverage is the share of the cleaned mask that is set.
	InkCoverage float64 `json:"ink_coverage"`

	// Questions and Options are the grid the bubbles were checked against.
	Questions int `json:"questions"`
	Options   int `json:"options"`

	// Warning explains a grid mismatch or too few bubbles.
	Warning string `json:"warning,omitempty"`

	// Bubbles are the accepted regions in reading order.
	Bubbles []detection.Region `json:"bubbles"`

	Mask *imaging.EncodedImage `json:"mask,omitempty"`
}

func (s *Server) handleDetectBubbles(args json.RawMessage) (interface{}, error) {
	var a detectBubblesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := s.gradingConfig(a.gradingArgs, "")
	if err != nil {
		return nil, err
	}
	segCfg, err := cfg.Segmenter()
	if err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	sheet, err := s.sheet(img, a.Rectified, cfg.Locator)
	if err != nil {
		return nil, err
	}

	seg, segErr := detection.SegmentBubbles(sheet.Gray, segCfg)
	if seg == nil {
		return nil, segErr
	}
	res := &BubblesResult{
		Candidates:  seg.Candidates,
		Accepted:    len(seg.Regions),
		Thresholder: segCfg.Thresholder.Name(),
		InkCoverage: grading.MaskCoverage(seg.Mask),
		Options:     cfg.Options,
		Bubbles:     grading.SortReadingOrder(seg.Regions),
	}
	res.Questions = grading.QuestionCount(cfg.Questions, 0, len(seg.Regions), cfg.Options)
	if segErr != nil {
		res.Warning = segErr.Error()
	} else {
		_, res.Warning = grading.Partition(seg.Regions, res.Questions, cfg.Options)
	}
	if a.IncludeMask {
		if res.Mask, err = imaging.EncodePNG(seg.Mask, 0); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// === Answer Keys ===

type parseKeyArgs struct {
	KeyPath string          `json:"key_path"`
	Key     json.RawMessage `json:"key"`
	Text    string          `json:"text"`
}

// KeyEntry is one keyed question.
type KeyEntry struct {
	// Question is 1-based.
	Question int    `json:"question"`
	Option   int    `json:"option"`
	Letter   string `json:"letter"`
}

// KeyResult is a parsed answer key.
type KeyResult struct {
	Total   int        `json:"total"`
	Keyed   int        `json:"keyed"`
	Answers []KeyEntry `json:"answers"`

	// Canonical is the key re-encoded in the file format Load reads.
	Canonical string `json:"canonical"`
}

func (s *Server) handleParseKey(args json.RawMessage) (interface{}, error) {
	var a parseKeyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	var key *answerkey.Key
	var err error
	if a.Text != "" {
		if a.KeyPath != "" || len(a.Key) > 0 {
			return nil, fmt.Errorf("give only one of key_path, key or text")
		}
		key, err = answerkey.ParseText(strings.NewReader(a.Text))
	} else {
		key, err = keyArgs{KeyPath: a.KeyPath, Key: a.Key}.key()
		if err == nil && key == nil {
			err = fmt.Errorf("one of key_path, key or text is required")
		}
	}
	if err != nil {
		return nil, err
	}

	res := &KeyResult{Total: key.Total(), Keyed: key.Keyed(), Answers: make([]KeyEntry, 0, key.Keyed())}
	for _, q := range key.Questions() {
		opt, _ := key.Answer(q)
		res.Answers = append(res.Answers, KeyEntry{Question: q + 1, Option: opt, Letter: answerkey.Letter(opt)})
	}
	var buf bytes.Buffer
	if err := key.WriteJSON(&buf); err != nil {
		return nil, err
	}
	res.Canonical = buf.String()
	return res, nil
}

// === Grading ===

type gradeArgs struct {
	gradingArgs
	keyArgs
	IncludeImage  bool   `json:"include_image"`
	MaxDimension  int    `json:"max_dimension"`
	AnnotatedPath string `json:"annotated_path"`
	Report        bool   `json:"report"`
}

// GradeResult is a graded sheet with optional renderings.
type GradeResult struct {
	*grading.Result

	Report        string                `json:"report,omitempty"`
	AnnotatedPath string                `json:"annotated_path,omitempty"`
	Image         *imaging.EncodedImage `json:"image,omitempty"`
}

func (s *Server) handleGrade(args json.RawMessage) (interface{}, error) {
	var a gradeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.MaxDimension == 0 {
		a.MaxDimension = 800
	}
	res, err := s.grade(a.gradingArgs, a.keyArgs)
	if err != nil {
		return nil, err
	}

	out := &GradeResult{Result: res}
	if a.Report {
		var buf bytes.Buffer
		if err := report.WriteReport(&buf, a.Path, res); err != nil {
			return nil, err
		}
		out.Report = buf.String()
	}
	if a.AnnotatedPath != "" {
		if err := imaging.Save(a.AnnotatedPath, res.Annotated); err != nil {
			return nil, err
		}
		out.AnnotatedPath = a.AnnotatedPath
	}
	if a.IncludeImage {
		if out.Image, err = imaging.EncodePNG(res.Annotated, a.MaxDimension); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type viewQuestionArgs struct {
	gradingArgs
	keyArgs
	Question int     `json:"question"`
	Scale    float64 `json:"scale"`
}

// QuestionView is one question's result and a crop of its bubble row.
type QuestionView struct {
	grading.QuestionResult

	// Bounds is the cropped row in rectified sheet pixels.
	Bounds image.Rectangle `json:"bounds"`

	Image *imaging.EncodedImage `json:"image"`
}

// questionPad leaves room for the question number drawn left of the row.
const questionPad = 36

func (s *Server) handleViewQuestion(args json.RawMessage) (interface{}, error) {
	var a viewQuestionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 2.0
	}
	res, err := s.grade(a.gradingArgs, a.keyArgs)
	if err != nil {
		return nil, err
	}
	if a.Question < 1 || a.Question > len(res.Questions) {
		return nil, fmt.Errorf("question %d out of range (sheet has %d)", a.Question, len(res.Questions))
	}

	q := res.Questions[a.Question-1]
	if len(q.Regions) == 0 {
		return nil, fmt.Errorf("question %d has no detected bubbles", a.Question)
	}
	row := q.Regions[0].Box.Rect()
	for _, r := range q.Regions[1:] {
		row = row.Union(r.Box.Rect())
	}
	crop, err := imaging.Crop(res.Annotated, row, questionPad, a.Scale)
	if err != nil {
		return nil, err
	}
	enc, err := imaging.EncodePNG(crop, 0)
	if err != nil {
		return nil, err
	}
	return &QuestionView{QuestionResult: q, Bounds: row.Inset(-questionPad).Intersect(res.Annotated.Bounds()), Image: enc}, nil
}

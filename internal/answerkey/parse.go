package answerkey

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/ironsheep/omr-grader/internal/omr"
)

// Names of the wrapper object members, in the order they are tried.
var (
	answersFields = []string{"respuestas", "answers"}
	totalFields   = []string{"total_preguntas", "total_questions", "total"}
	correctFields = []string{"correcta", "correct"}
	labelWords    = []string{"pregunta", "question"}
)

// Load reads a key from path. Files ending in .txt are read with ParseText,
// everything else with Parse.
func Load(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", omr.ErrKeyLoad, err)
	}
	if strings.EqualFold(fileExt(path), ".txt") {
		return ParseText(bytes.NewReader(data))
	}
	k, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

func fileExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 && !strings.ContainsAny(path[i:], `/\`) {
		return path[i:]
	}
	return ""
}

// Parse decodes a JSON answer key in any of the three accepted shapes.
//
// The shape is chosen from the document root: an array is a list key; an
// object holding "respuestas" or "answers" is a wrapped key; any other
// object is a flat map. All failures wrap omr.ErrKeyLoad.
func Parse(data []byte) (*Key, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", omr.ErrKeyLoad)
	}

	switch trimmed[0] {
	case '[':
		return parseList(trimmed)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", omr.ErrKeyLoad, err)
		}
		for _, f := range answersFields {
			if inner, ok := obj[f]; ok {
				return parseWrapped(inner, obj)
			}
		}
		total, err := readTotal(obj)
		if err != nil {
			return nil, err
		}
		return parseFlat(obj, total)
	default:
		return nil, fmt.Errorf("%w: expected a JSON object or array", omr.ErrKeyLoad)
	}
}

// parseWrapped handles {"respuestas": <list or map>, "total_preguntas": n}.
// Numeric member names inside the wrapper are zero-based.
func parseWrapped(inner json.RawMessage, outer map[string]json.RawMessage) (*Key, error) {
	total, err := readTotal(outer)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(inner)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		k, err := parseList(trimmed)
		if err != nil {
			return nil, err
		}
		return New(k.answers, max(total, k.total)), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("%w: answers must be a list or an object: %v", omr.ErrKeyLoad, err)
	}
	return parseFlat(obj, total)
}

// readTotal returns the first total member of obj, or 0 when there is none.
func readTotal(obj map[string]json.RawMessage) (int, error) {
	for _, f := range totalFields {
		raw, ok := obj[f]
		if !ok {
			continue
		}
		var total int
		if err := json.Unmarshal(raw, &total); err != nil || total < 0 {
			return 0, fmt.Errorf("%w: %s must be a non-negative integer", omr.ErrKeyLoad, f)
		}
		return total, nil
	}
	return 0, nil
}

// parseList handles ["A", 1, null, {"correct": "C"}]: entry i answers
// question i.
func parseList(data []byte) (*Key, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", omr.ErrKeyLoad, err)
	}
	answers := make(map[int]int, len(items))
	for i, raw := range items {
		o, ok, err := parseOption(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", omr.ErrKeyLoad, i, err)
		}
		if ok {
			answers[i] = o
		}
	}
	return New(answers, len(items)), nil
}

// parseFlat handles an object keyed by question. A member whose name
// mentions a label word ("pregunta3", "mi_pregunta_3", "Question 3") or is
// a bare number names a zero-based question index. Total members and other
// names are ignored.
func parseFlat(obj map[string]json.RawMessage, total int) (*Key, error) {
	answers := make(map[int]int, len(obj))
	for name, raw := range obj {
		if isTotalField(name) {
			continue
		}
		q, ok, err := questionIndex(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", omr.ErrKeyLoad, name, err)
		}
		if !ok {
			continue
		}
		if _, dup := answers[q]; dup {
			return nil, fmt.Errorf("%w: question %d given twice", omr.ErrKeyLoad, q+1)
		}
		o, keyed, err := parseOption(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", omr.ErrKeyLoad, name, err)
		}
		if keyed {
			answers[q] = o
		}
	}
	if len(answers) == 0 && total == 0 {
		return nil, fmt.Errorf("%w: no question entries found", omr.ErrKeyLoad)
	}
	return New(answers, total), nil
}

// questionIndex maps a member name to a zero-based question index. ok is
// false for names that do not identify a question.
func questionIndex(name string) (int, bool, error) {
	s := strings.TrimSpace(name)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, false, fmt.Errorf("negative question index")
		}
		return n, true, nil
	}

	lower := strings.ToLower(s)
	for _, w := range labelWords {
		i := strings.Index(lower, w)
		if i < 0 {
			continue
		}
		digits := strings.Trim(lower[i+len(w):], " _-#:.")
		n, err := strconv.Atoi(digits)
		if err != nil || n < 0 {
			return 0, false, fmt.Errorf("no question number after %q", w)
		}
		return n, true, nil
	}
	return 0, false, nil
}

func isTotalField(name string) bool {
	for _, f := range totalFields {
		if name == f {
			return true
		}
	}
	return false
}

// parseOption decodes one key value. ok is false for null and negative
// numbers, which leave the question unkeyed.
func parseOption(raw json.RawMessage) (int, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}

	switch raw[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, false, err
		}
		for _, f := range correctFields {
			if inner, ok := obj[f]; ok {
				return parseOption(inner)
			}
		}
		return 0, false, fmt.Errorf("object has no %q member", correctFields[0])
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false, err
		}
		return optionFromString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, false, fmt.Errorf("unsupported value %s", raw)
		}
		i, err := n.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("option %s is not an integer", n)
		}
		if i < 0 {
			return 0, false, nil
		}
		return int(i), true, nil
	}
}

// optionFromString accepts a single letter (case-insensitive, A is 0) or a
// decimal index. An empty string leaves the question unkeyed.
func optionFromString(s string) (int, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	if r := []rune(s); len(r) == 1 && unicode.IsLetter(r[0]) {
		up := unicode.ToUpper(r[0])
		if up < 'A' || up > 'Z' {
			return 0, false, fmt.Errorf("option letter %q outside A-Z", s)
		}
		return int(up - 'A'), true, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("option %q is neither a letter nor a number", s)
	}
	if n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}

// ParseText reads a plain-text key. Each relevant line looks like
// "Pregunta 3: B" or "Question 3: 1": the question number counts from 1,
// and the answer is a letter or a zero-based option index. Lines without a
// label word are skipped.
func ParseText(r io.Reader) (*Key, error) {
	answers := make(map[int]int)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		label, answer, found := strings.Cut(text, ":")
		if !found || !hasLabelWord(label) {
			continue
		}

		digits := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, label)
		n, err := strconv.Atoi(digits)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: line %d: bad question number", omr.ErrKeyLoad, line)
		}

		answer = strings.TrimSpace(answer)
		if answer == "" {
			continue
		}
		first := []rune(answer)[0]
		var o int
		var ok bool
		if unicode.IsLetter(first) {
			o, ok, err = optionFromString(string(first))
		} else {
			o, ok, err = optionFromString(answer)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", omr.ErrKeyLoad, line, err)
		}
		if ok {
			answers[n-1] = o
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", omr.ErrKeyLoad, err)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: no \"Pregunta N: X\" lines found", omr.ErrKeyLoad)
	}
	return New(answers, 0), nil
}

func hasLabelWord(s string) bool {
	lower := strings.ToLower(s)
	for _, w := range labelWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

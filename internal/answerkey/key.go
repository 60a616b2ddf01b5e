// Package answerkey loads and writes answer keys.
//
// A key maps zero-based question indices to zero-based option indices.
// Questions without an entry are unkeyed: they are graded but left out of
// the score denominator.
//
// Three JSON shapes are accepted, chosen by looking at the document's
// structure:
//
//	{"respuestas": {"0": "B", "1": 2}, "total_preguntas": 2}   wrapped
//	["B", 2, null, "d"]                                         list
//	{"pregunta0": "B", "question1": {"correct": "C"}, "3": 0}    flat map
//
// Flat map members whose names mention "pregunta" or "question" carry the
// same zero-based index as bare numeric names.
//
// Plain-text keys with one "Pregunta N: X" or "Question N: X" line per
// question are read by ParseText.
package answerkey

import (
	"fmt"
	"sort"
)

// Key is a read-only answer key. The zero value is an empty key.
type Key struct {
	answers map[int]int
	total   int
}

// New builds a key from question → option pairs. Negative options are
// dropped. total is the number of questions on the sheet; when it is
// smaller than the highest keyed question it is raised to cover it.
func New(answers map[int]int, total int) *Key {
	k := &Key{answers: make(map[int]int, len(answers))}
	for q, o := range answers {
		if q < 0 || o < 0 {
			continue
		}
		k.answers[q] = o
		total = max(total, q+1)
	}
	k.total = total
	return k
}

// FromList builds a key where entry i answers question i. Negative
// entries leave the question unkeyed.
func FromList(options ...int) *Key {
	m := make(map[int]int, len(options))
	for i, o := range options {
		m[i] = o
	}
	return New(m, len(options))
}

// Answer returns the keyed option for question q.
func (k *Key) Answer(q int) (int, bool) {
	if k == nil {
		return 0, false
	}
	o, ok := k.answers[q]
	return o, ok
}

// Total returns the number of questions the key describes, keyed or not.
func (k *Key) Total() int {
	if k == nil {
		return 0
	}
	return k.total
}

// Keyed returns the number of questions that have an answer.
func (k *Key) Keyed() int {
	if k == nil {
		return 0
	}
	return len(k.answers)
}

// Questions returns the keyed question indices in ascending order.
func (k *Key) Questions() []int {
	if k == nil {
		return nil
	}
	qs := make([]int, 0, len(k.answers))
	for q := range k.answers {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	return qs
}

func (k *Key) String() string {
	return fmt.Sprintf("answer key: %d of %d questions keyed", k.Keyed(), k.Total())
}

// Letter returns the option letter for a zero-based option index: 0 is
// "A". Indices past "Z" are written as numbers; negative ones as "-".
func Letter(option int) string {
	switch {
	case option < 0:
		return "-"
	case option < 26:
		return string(rune('A' + option))
	default:
		return fmt.Sprintf("%d", option)
	}
}

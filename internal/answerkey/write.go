package answerkey

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// WriteJSON writes k in the wrapped shape with zero-based question indices
// and letter answers, questions in ascending order:
//
//	{
//	  "respuestas": {
//	    "0": "B",
//	    "2": "D"
//	  },
//	  "total_preguntas": 4,
//	  "formato": "pregunta_idx: respuesta"
//	}
//
// The output is deterministic, so converting the same key twice yields the
// same bytes.
func (k *Key) WriteJSON(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "{")
	fmt.Fprint(bw, `  "respuestas": {`)

	qs := k.Questions()
	for i, q := range qs {
		o, _ := k.Answer(q)
		val, err := json.Marshal(Letter(o))
		if err != nil {
			return err
		}
		sep := ","
		if i == len(qs)-1 {
			sep = ""
		}
		fmt.Fprintf(bw, "\n    \"%d\": %s%s", q, val, sep)
	}
	if len(qs) > 0 {
		fmt.Fprint(bw, "\n  ")
	}
	fmt.Fprintln(bw, "},")
	fmt.Fprintf(bw, "  \"total_preguntas\": %d,\n", k.Total())
	fmt.Fprintln(bw, `  "formato": "pregunta_idx: respuesta"`)
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

package trace

import "fmt"

// Divergence describes where two traces first differ.
type Divergence struct {
	Index    int
	Field    string
	Expected string
	Actual   string
}

// Compare returns the first divergence between two step sequences, or nil
// when they are equivalent.
func Compare(expected, actual []Step) *Divergence {
	n := min(len(expected), len(actual))
	for i := 0; i < n; i++ {
		e, a := expected[i], actual[i]
		switch {
		case e.Kind != a.Kind:
			return &Divergence{Index: i, Field: "kind", Expected: string(e.Kind), Actual: string(a.Kind)}
		case e.Label != a.Label:
			return &Divergence{Index: i, Field: "label", Expected: e.Label, Actual: a.Label}
		case heapString(e.Heap) != heapString(a.Heap):
			return &Divergence{Index: i, Field: "heap", Expected: heapString(e.Heap), Actual: heapString(a.Heap)}
		}
	}
	if len(expected) != len(actual) {
		return &Divergence{
			Index:    n,
			Field:    "length",
			Expected: fmt.Sprint(len(expected)),
			Actual:   fmt.Sprint(len(actual)),
		}
	}
	return nil
}

func FormatDivergence(d *Divergence) string {
	if d == nil {
		return "no divergence detected"
	}
	return fmt.Sprintf("trace divergence detected:\n- step=%d field=%s expected=%q actual=%q\n",
		d.Index, d.Field, d.Expected, d.Actual)
}

func heapString(h *HeapRecord) string {
	if h == nil {
		return ""
	}
	return fmt.Sprintf("%s %v %s", h.Address, h.OwnerNames, h.Value)
}

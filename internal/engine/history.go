package engine

// historyCap bounds the per-instance visit history. Sixteen entries is
// enough to show the repeating pattern of any realistic stuck cycle in a
// failure report without growing per-patient memory over a lifetime.
const historyCap = 16

// History is a bounded ring of recently visited state names for one
// module instance. It exists for diagnostics: when a step budget runs
// out, the ring shows the cycle the instance was trapped in.
type History struct {
	ring  [historyCap]string
	next  int
	count int
}

// Push records a visited state name.
func (h *History) Push(state string) {
	h.ring[h.next] = state
	h.next = (h.next + 1) % historyCap
	if h.count < historyCap {
		h.count++
	}
}

// Recent returns the visited names oldest first, at most historyCap of
// them.
func (h *History) Recent() []string {
	out := make([]string, 0, h.count)
	start := h.next - h.count
	if start < 0 {
		start += historyCap
	}
	for i := 0; i < h.count; i++ {
		out = append(out, h.ring[(start+i)%historyCap])
	}
	return out
}

// Len reports how many names are held, at most historyCap.
func (h *History) Len() int {
	return h.count
}

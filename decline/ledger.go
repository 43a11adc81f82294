package decline

// Ledger remembers which elements were clicked on a page so that
// overlapping runs never count the same control twice. It belongs to a
// single page context and is not safe for concurrent use.
type Ledger struct {
	clicked map[string]bool
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{clicked: make(map[string]bool)}
}

// Clicked reports whether key was recorded.
func (l *Ledger) Clicked(key string) bool { return l.clicked[key] }

// Mark records key.
func (l *Ledger) Mark(key string) { l.clicked[key] = true }

// Len is the number of recorded clicks.
func (l *Ledger) Len() int { return len(l.clicked) }

package notify

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/decline"
	"github.com/hazyhaar/cookiewall/tracking"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) write(typ string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: typ, Data: data})
}

func (s *Stdout) SendAnalysis(_ context.Context, pa *analysis.PageAnalysis) error {
	return s.write("analysis", pa)
}

func (s *Stdout) SendDecline(_ context.Context, res decline.Result) error {
	return s.write("decline", res)
}

func (s *Stdout) SendTracking(_ context.Context, ev tracking.Event) error {
	return s.write("tracking", ev)
}

func (s *Stdout) Close() error { return nil }

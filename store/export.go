package store

import (
	"context"
	"time"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/settings"
)

// ExportVersion is the export format version.
const ExportVersion = "1.0"

// ExportSummary totals an export.
type ExportSummary struct {
	TotalSitesAnalyzed int `json:"totalSitesAnalyzed"`
	TotalCookiesFound  int `json:"totalCookiesFound"`
}

// Export is the user-facing data dump.
type Export struct {
	Version    string                   `json:"version"`
	ExportDate time.Time                `json:"exportDate"`
	Settings   settings.Settings        `json:"settings"`
	Analyses   []*analysis.PageAnalysis `json:"analyses"`
	Summary    ExportSummary            `json:"summary"`
}

// Export gathers every stored analysis with the current settings.
func (s *Store) Export(ctx context.Context, set settings.Settings) (*Export, error) {
	all, err := s.allAnalyses(ctx)
	if err != nil {
		return nil, err
	}
	exp := &Export{
		Version:    ExportVersion,
		ExportDate: time.Now().UTC(),
		Settings:   set,
		Analyses:   all,
	}
	exp.Summary.TotalSitesAnalyzed = len(all)
	for _, pa := range all {
		exp.Summary.TotalCookiesFound += pa.Cookies.Total
	}
	return exp, nil
}

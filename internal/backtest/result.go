package backtest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/rs/zerolog"
)

// Uploader pushes persisted artifacts to remote storage. Optional; a nil
// uploader keeps results local only.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// ResultStore persists finished runs: one JSON document plus a parallel CSV
// of (date, portfolio_value, drawdown) rows per run.
type ResultStore struct {
	dir      string
	uploader Uploader
	log      zerolog.Logger
}

// NewResultStore creates a result store rooted at dir.
func NewResultStore(dir string, uploader Uploader, log zerolog.Logger) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &ResultStore{
		dir:      dir,
		uploader: uploader,
		log:      log.With().Str("component", "results").Logger(),
	}, nil
}

// RunSummary is the listing view of a persisted run.
type RunSummary struct {
	RunID       string         `json:"run_id"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Cadence     domain.Cadence `json:"cadence"`
	TotalReturn float64        `json:"total_return"`
	Sharpe      float64        `json:"sharpe"`
	MaxDrawdown float64        `json:"max_drawdown"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Save writes the run's JSON and curve CSV, then uploads both when an
// uploader is configured. The result is immutable once written.
func (s *ResultStore) Save(ctx context.Context, result *domain.BacktestResult) error {
	doc, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	jsonPath := s.jsonPath(result.RunID)
	if err := os.WriteFile(jsonPath, doc, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	curve, err := s.writeCurveCSV(result)
	if err != nil {
		return err
	}

	s.log.Info().
		Str("run_id", result.RunID).
		Str("path", jsonPath).
		Msg("Persisted backtest result")

	if s.uploader != nil {
		if err := s.uploader.Upload(ctx, result.RunID+".json", doc, "application/json"); err != nil {
			s.log.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to upload result JSON")
		}
		if err := s.uploader.Upload(ctx, result.RunID+"_curve.csv", curve, "text/csv"); err != nil {
			s.log.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to upload curve CSV")
		}
	}
	return nil
}

// writeCurveCSV writes the tabular curve file and returns its bytes.
func (s *ResultStore) writeCurveCSV(result *domain.BacktestResult) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write([]string{"date", "portfolio_value", "drawdown"}); err != nil {
		return nil, fmt.Errorf("failed to write curve header: %w", err)
	}
	for i, p := range result.Curve {
		dd := 0.0
		if i < len(result.Drawdown) {
			dd = result.Drawdown[i]
		}
		row := []string{
			p.Date.Format("2006-01-02"),
			strconv.FormatFloat(p.Value, 'f', 2, 64),
			strconv.FormatFloat(dd, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write curve row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush curve writer: %w", err)
	}

	data := []byte(sb.String())
	if err := os.WriteFile(s.curvePath(result.RunID), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write curve file: %w", err)
	}
	return data, nil
}

// List returns summaries of all persisted runs, newest first.
func (s *ResultStore) List() ([]RunSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var summaries []RunSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		result, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable result")
			continue
		}
		summaries = append(summaries, RunSummary{
			RunID:       result.RunID,
			Start:       result.Start,
			End:         result.End,
			Cadence:     result.Cadence,
			TotalReturn: result.Metrics.TotalReturn,
			Sharpe:      result.Metrics.Sharpe,
			MaxDrawdown: result.Metrics.MaxDrawdown,
			CreatedAt:   result.CreatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Load reads one persisted run by ID.
func (s *ResultStore) Load(runID string) (*domain.BacktestResult, error) {
	data, err := os.ReadFile(s.jsonPath(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to read result %s: %w", runID, err)
	}
	var result domain.BacktestResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result %s: %w", runID, err)
	}
	return &result, nil
}

// CurvePath returns the path of a run's curve CSV.
func (s *ResultStore) CurvePath(runID string) string { return s.curvePath(runID) }

func (s *ResultStore) jsonPath(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

func (s *ResultStore) curvePath(runID string) string {
	return filepath.Join(s.dir, runID+"_curve.csv")
}

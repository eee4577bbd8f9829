package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"sheetcalc/api/internal/calculator"
	"sheetcalc/api/internal/config"
	"sheetcalc/api/internal/ids"
	"sheetcalc/api/internal/models"
)

const (
	historyLimit = 10
	exportLimit  = 1000
)

type CalculatorService struct {
	calculations CalculationStore
	exports      ExportStore
	cfg          *config.AppConfig
	log          zerolog.Logger
	now          func() time.Time
}

func NewCalculatorService(calculations CalculationStore, exports ExportStore, cfg *config.AppConfig, log zerolog.Logger) *CalculatorService {
	return &CalculatorService{
		calculations: calculations,
		exports:      exports,
		cfg:          cfg,
		log:          log,
		now:          time.Now,
	}
}

// Calculate runs the estimate and records it in the account's history.
func (s *CalculatorService) Calculate(ctx context.Context, accountID string, dims calculator.Dimensions) (models.Calculation, error) {
	result, err := calculator.Estimate(dims)
	if err != nil {
		if errors.Is(err, calculator.ErrInvalidDimension) {
			return models.Calculation{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return models.Calculation{}, err
	}

	calc := models.Calculation{
		ID:               ids.New(),
		AccountID:        accountID,
		Length:           dims.Length,
		Width:            dims.Width,
		Height:           dims.Height,
		Thickness:        dims.Thickness,
		SurfaceArea:      result.SurfaceArea,
		SheetArea:        result.SheetArea,
		MaterialRequired: result.MaterialRequired,
		Wastage:          result.Wastage,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.calculations.Create(ctx, calc); err != nil {
		return models.Calculation{}, fmt.Errorf("save calculation: %w", err)
	}
	return calc, nil
}

// History returns the most recent calculations, newest first.
func (s *CalculatorService) History(ctx context.Context, accountID string) ([]models.Calculation, error) {
	calcs, err := s.calculations.ListRecent(ctx, accountID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}
	return calcs, nil
}

type ExportResult struct {
	Key       string
	URL       string
	ExpiresAt time.Time
	Rows      int
}

// Export writes the account's calculation history as CSV to the exports
// bucket and returns a presigned download link.
func (s *CalculatorService) Export(ctx context.Context, accountID string) (ExportResult, error) {
	calcs, err := s.calculations.ListRecent(ctx, accountID, exportLimit)
	if err != nil {
		return ExportResult{}, fmt.Errorf("list calculations: %w", err)
	}

	data, err := encodeCalculations(calcs)
	if err != nil {
		return ExportResult{}, err
	}

	now := s.now().UTC()
	key := fmt.Sprintf("%s/%s-%s.csv", accountID, now.Format("20060102T150405Z"), ids.New())
	if err := s.exports.PutExport(ctx, key, "text/csv", data); err != nil {
		return ExportResult{}, fmt.Errorf("upload export: %w", err)
	}

	ttl := s.cfg.Storage.PresignTTL
	url, err := s.exports.PresignExport(ctx, key, ttl)
	if err != nil {
		return ExportResult{}, fmt.Errorf("presign export: %w", err)
	}

	s.log.Info().Str("account_id", accountID).Str("key", key).Int("rows", len(calcs)).Msg("calculations exported")
	return ExportResult{Key: key, URL: url, ExpiresAt: now.Add(ttl), Rows: len(calcs)}, nil
}

var csvHeader = []string{
	"id", "created_at", "length", "width", "height", "thickness",
	"surface_area", "sheet_area", "material_required", "wastage_percent",
}

func encodeCalculations(calcs []models.Calculation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, c := range calcs {
		record := []string{
			c.ID,
			c.CreatedAt.Format(time.RFC3339),
			formatFloat(c.Length),
			formatFloat(c.Width),
			formatFloat(c.Height),
			formatFloat(c.Thickness),
			formatFloat(c.SurfaceArea),
			formatFloat(c.SheetArea),
			formatFloat(c.MaterialRequired),
			formatFloat(c.Wastage),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

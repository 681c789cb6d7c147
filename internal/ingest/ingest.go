// Package ingest turns a CSV export into normalized transaction records.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/logger"
	"github.com/dvloznov/txgroup/internal/mapping"
)

const bom = "\ufeff"

var (
	// ErrSourceUnavailable means the CSV stream could not be opened or read.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrNoHeader is returned for a source without a header row.
	ErrNoHeader = errors.New("missing header row")
)

// RowError records a data row that was dropped because a field failed to parse.
type RowError struct {
	Line int   `json:"line"`
	Err  error `json:"-"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Result is the outcome of ingesting one CSV stream. Nothing in it is
// persisted yet.
type Result struct {
	Headers []string
	Records []domain.TransactionRecord
	// Skipped counts rows whose field count did not match the header.
	Skipped int
	Failed  []RowError
}

// ReadHeaders reads only the header row of r.
func ReadHeaders(r io.Reader) ([]string, error) {
	reader := newReader(r)
	headers, err := readHeaders(reader)
	if err != nil {
		return nil, fmt.Errorf("ReadHeaders: %w", err)
	}
	return headers, nil
}

// Ingest reads every row of r, zips it with the header row and resolves it
// into a TransactionRecord for batch fileID.
//
// The mapping is validated before any data row is read. Rows with the wrong
// number of fields are counted in Result.Skipped. Rows whose date does not
// parse are dropped and reported in Result.Failed. A read failure of the
// underlying stream aborts the whole ingestion with ErrSourceUnavailable.
func Ingest(ctx context.Context, r io.Reader, m mapping.ColumnMapping, fileID string, resolver *mapping.Resolver) (*Result, error) {
	log := logger.FromContext(ctx)

	if err := m.Validate(nil); err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}
	if resolver == nil {
		resolver = mapping.NewResolver("")
	}

	reader := newReader(r)
	headers, err := readHeaders(reader)
	if err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}
	if err := m.Validate(headers); err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}

	result := &Result{Headers: headers}
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("Ingest: %w", err)
		}

		values, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				log.Debug().Err(err).Int("line", parseErr.Line).Msg("Skipping unreadable CSV line")
				result.Skipped++
				continue
			}
			return nil, fmt.Errorf("Ingest: reading row: %w: %v", ErrSourceUnavailable, err)
		}

		line, _ := reader.FieldPos(0)
		if len(values) != len(headers) {
			log.Debug().
				Int("line", line).
				Int("fields", len(values)).
				Int("headers", len(headers)).
				Msg("Skipping row with mismatched field count")
			result.Skipped++
			continue
		}

		row := mapping.Zip(headers, values)
		v, err := resolver.Resolve(row, m)
		if err != nil {
			result.Failed = append(result.Failed, RowError{Line: line, Err: err})
			continue
		}

		result.Records = append(result.Records, domain.TransactionRecord{
			ID:              uuid.NewString(),
			FileID:          fileID,
			TransactionDate: v.Date,
			Amount:          v.Amount,
			Currency:        v.Currency,
			Description:     v.Description,
			Recipient:       v.Recipient,
			Type:            v.Type,
			OriginalData:    row,
		})
	}

	log.Info().
		Str("batch_id", fileID).
		Int("records", len(result.Records)).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failed)).
		Msg("Ingested CSV")

	return result, nil
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

func readHeaders(reader *csv.Reader) ([]string, error) {
	headers, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		return nil, fmt.Errorf("reading header: %w: %v", ErrSourceUnavailable, err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], bom)
	}
	return headers, nil
}

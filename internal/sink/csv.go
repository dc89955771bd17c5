package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"jobharvest/internal/jobs"
)

// absentCell marks a field the posting never carried. Distinct from an
// empty string, which would be a present-but-blank value.
const absentCell = "N/A"

var csvHeader = []string{
	"job_id", "title", "location", "workload_percent",
	"salary_min", "salary_max", "salary_currency", "salary_period",
	"contract_type", "posted_date", "source_url", "html_ref",
}

// CSVWriter appends record rows to a single CSV file, writing the
// header only when the file starts empty.
type CSVWriter struct {
	file *os.File
	w    *csv.Writer
}

// NewCSVWriter opens the target file in append mode.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	cw := &CSVWriter{file: f, w: csv.NewWriter(f)}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() == 0 {
		if err := cw.w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		cw.w.Flush()
		if err := cw.w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}
	return cw, nil
}

func (c *CSVWriter) Name() string { return "csv" }

// WriteBatch appends one row per record and flushes to disk.
func (c *CSVWriter) WriteBatch(_ context.Context, batch []jobs.Record) error {
	for _, rec := range batch {
		if err := c.w.Write(recordRow(rec)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv batch: %w", err)
	}
	return nil
}

func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return c.file.Close()
}

func recordRow(rec jobs.Record) []string {
	row := []string{
		rec.Identity.JobID,
		rec.Title,
		cellString(rec.Location),
		cellInt(rec.WorkloadPercent),
	}
	if rec.Salary != nil {
		row = append(row,
			strconv.FormatFloat(rec.Salary.Min, 'f', -1, 64),
			strconv.FormatFloat(rec.Salary.Max, 'f', -1, 64),
			rec.Salary.Currency,
			string(rec.Salary.Period),
		)
	} else {
		row = append(row, absentCell, absentCell, absentCell, absentCell)
	}
	row = append(row,
		cellString(rec.ContractType),
		cellString(rec.PostedDate),
		rec.SourceURL,
		rec.HTMLRef,
	)
	return row
}

func cellString(v *string) string {
	if v == nil {
		return absentCell
	}
	return *v
}

func cellInt(v *int) string {
	if v == nil {
		return absentCell
	}
	return strconv.Itoa(*v)
}

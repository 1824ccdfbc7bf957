package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	bloomCapacity = 1 << 20
	bloomFPR      = 0.001
)

// Column names of a coupon definition file. Only the first four are required.
const (
	colCode              = "code"
	colName              = "name"
	colType              = "type"
	colValue             = "value"
	colDescription       = "description"
	colMinOrderAmount    = "min_order_amount"
	colMaxDiscountAmount = "max_discount_amount"
	colStartDate         = "start_date"
	colEndDate           = "end_date"
	colUsageLimit        = "usage_limit"
	colIsActive          = "is_active"
)

var requiredColumns = []string{colCode, colName, colType, colValue}

// definition is one coupon row and where it came from.
type definition struct {
	file  string
	line  int
	input coupon.Input
}

func (d definition) location() string {
	return d.file + ":" + strconv.Itoa(d.line)
}

// fileResult holds the valid definitions of one file and a bloom filter of
// their codes.
type fileResult struct {
	defs     []definition
	filter   *bloom.BloomFilter
	suspects map[string]struct{}
	invalid  int
}

// parseFile reads a gzip-compressed CSV file of coupon definitions.
func parseFile(ctx context.Context, lg *zap.Logger, path string) (*fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return parseDefinitions(ctx, lg, gz, path)
}

// parseDefinitions reads CSV rows from r. Rows that do not describe a valid
// coupon are logged and skipped. Codes repeated within the file are recorded as
// suspects for the exact duplicate check.
func parseDefinitions(ctx context.Context, lg *zap.Logger, r io.Reader, name string) (*fileResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", name)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if missing := lo.Filter(requiredColumns, func(c string, _ int) bool {
		_, ok := cols[c]
		return !ok
	}); len(missing) > 0 {
		return nil, errors.Errorf("%s: missing columns %s", name, strings.Join(missing, ", "))
	}

	res := &fileResult{
		filter:   bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		suspects: make(map[string]struct{}),
	}
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}

		in, err := parseRecord(record, cols)
		if err == nil {
			err = in.Validate()
		}
		if err != nil {
			lg.Warn("Skipping invalid coupon row",
				zap.String("file", name),
				zap.Int("line", line),
				zap.Error(err),
			)
			res.invalid++
			continue
		}

		in.Code = coupon.NormalizeCode(in.Code)
		if res.filter.TestAndAddString(in.Code) {
			res.suspects[in.Code] = struct{}{}
		}
		res.defs = append(res.defs, definition{file: name, line: line, input: in})
	}
	return res, nil
}

func parseRecord(record []string, cols map[string]int) (coupon.Input, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	in := coupon.Input{
		Code:        field(colCode),
		Name:        field(colName),
		Description: field(colDescription),
		Type:        coupon.Type(strings.ToUpper(field(colType))),
		IsActive:    true,
	}

	var err error
	if in.Value, err = decimal.NewFromString(field(colValue)); err != nil {
		return in, errors.Wrap(err, colValue)
	}
	if in.MinOrderAmount, err = optDecimal(field(colMinOrderAmount)); err != nil {
		return in, errors.Wrap(err, colMinOrderAmount)
	}
	if in.MaxDiscountAmount, err = optDecimal(field(colMaxDiscountAmount)); err != nil {
		return in, errors.Wrap(err, colMaxDiscountAmount)
	}
	if in.StartDate, err = optTime(field(colStartDate)); err != nil {
		return in, errors.Wrap(err, colStartDate)
	}
	if in.EndDate, err = optTime(field(colEndDate)); err != nil {
		return in, errors.Wrap(err, colEndDate)
	}
	if v := field(colUsageLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return in, errors.Wrap(err, colUsageLimit)
		}
		in.UsageLimit = &n
	}
	if v := field(colIsActive); v != "" {
		if in.IsActive, err = strconv.ParseBool(v); err != nil {
			return in, errors.Wrap(err, colIsActive)
		}
	}
	return in, nil
}

func optDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// optTime accepts RFC 3339 timestamps and plain dates, read as UTC midnight.
func optTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return lo.ToPtr(t.UTC()), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, errors.Errorf("%q is neither an RFC 3339 timestamp nor a date", s)
	}
	return &t, nil
}

// dedupe drops every code defined more than once across all files. The bloom
// filters narrow the exact count down to codes that may repeat.
func dedupe(results []*fileResult) (unique []definition, duplicates map[string][]definition) {
	suspects := make(map[string]struct{})
	for i, r := range results {
		for code := range r.suspects {
			suspects[code] = struct{}{}
		}
		for _, d := range r.defs {
			for j, other := range results {
				if j != i && other.filter.TestString(d.input.Code) {
					suspects[d.input.Code] = struct{}{}
					break
				}
			}
		}
	}

	seen := make(map[string][]definition, len(suspects))
	for _, r := range results {
		for _, d := range r.defs {
			if _, ok := suspects[d.input.Code]; ok {
				seen[d.input.Code] = append(seen[d.input.Code], d)
			}
		}
	}

	duplicates = make(map[string][]definition)
	for code, defs := range seen {
		if len(defs) > 1 {
			duplicates[code] = defs
		}
	}
	for _, r := range results {
		for _, d := range r.defs {
			if _, dup := duplicates[d.input.Code]; !dup {
				unique = append(unique, d)
			}
		}
	}
	return unique, duplicates
}

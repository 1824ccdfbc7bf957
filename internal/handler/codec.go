package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/money"
)

const (
	maxBodyBytes = 1 << 20
	// maxNumberLen is generous for any amount money.Fits accepts.
	maxNumberLen = 32
)

var errMalformedBody = errors.New("malformed request body")

func malformed(format string, args ...any) error {
	return fault.New(fault.InvalidInput, errMalformedBody, format, args...)
}

// decodeBody reads the request body and hands it to fn as a JSON object,
// one field at a time. Syntax and type errors become InvalidInput failures.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return malformed("Request body is too large.")
		}
		return errors.Wrap(err, "read body")
	}
	if len(data) == 0 {
		return malformed("Request body is required.")
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		if _, ok := fault.As(err); ok {
			return err
		}
		return malformed("Request body is not valid JSON.")
	}
	return nil
}

// decodeDecimal accepts a JSON number or a numeric string that fits a stored
// amount.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	default:
		return decimal.Decimal{}, malformed("Field %s must be a number.", field)
	}
	if len(raw) > maxNumberLen {
		return decimal.Decimal{}, malformed("Field %s is out of range.", field)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, malformed("Field %s must be a number.", field)
	}
	if !money.Fits(v) {
		return decimal.Decimal{}, malformed("Field %s must have at most %d decimal places and %d integer digits.",
			field, money.Scale, money.IntegerDigits)
	}
	return v, nil
}

func decodeOptDecimal(d *jx.Decoder, field string) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decodeDecimal(d, field)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeOptTime(d *jx.Decoder, field string) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, malformed("Field %s must be an RFC 3339 timestamp.", field)
	}
	return &t, nil
}

func decodeOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeOptStr(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeOptFloat(d *jx.Decoder) (*float64, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Float64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// writeJSON encodes the response with fn and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeMoney(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(v.StringFixed(2))
}

func encodeOptMoney(e *jx.Encoder, field string, v *decimal.Decimal) {
	if v == nil {
		return
	}
	encodeMoney(e, field, *v)
}

func encodeTime(e *jx.Encoder, field string, t time.Time) {
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOptTime(e *jx.Encoder, field string, t *time.Time) {
	if t == nil {
		return
	}
	encodeTime(e, field, *t)
}

func encodeStr(e *jx.Encoder, field, v string) {
	e.FieldStart(field)
	e.Str(v)
}

func encodeOmitEmpty(e *jx.Encoder, field, v string) {
	if v == "" {
		return
	}
	encodeStr(e, field, v)
}

package preprocess

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
)

// Encoder is a bidirectional category <-> code mapping. Codes follow the
// sorted order of the categories seen at fit time.
type Encoder struct {
	categories []string
	codes      map[string]int
}

// FitEncoder builds an encoder over the distinct values.
func FitEncoder(values []string) *Encoder {
	seen := make(map[string]bool)
	categories := make([]string, 0)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			categories = append(categories, v)
		}
	}
	sort.Strings(categories)
	return newEncoder(categories)
}

func newEncoder(categories []string) *Encoder {
	codes := make(map[string]int, len(categories))
	for i, c := range categories {
		codes[c] = i
	}
	return &Encoder{categories: categories, codes: codes}
}

// Encode maps a category to its code. ok is false for unseen categories.
func (e *Encoder) Encode(category string) (code int, ok bool) {
	code, ok = e.codes[category]
	return code, ok
}

// Decode maps a code back to its category.
func (e *Encoder) Decode(code int) (string, bool) {
	if code < 0 || code >= len(e.categories) {
		return "", false
	}
	return e.categories[code], true
}

// Categories returns the categories in code order.
func (e *Encoder) Categories() []string {
	return append([]string(nil), e.categories...)
}

// Len returns the number of known categories.
func (e *Encoder) Len() int { return len(e.categories) }

func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Categories []string `json:"categories"`
	}{e.categories})
}

func (e *Encoder) UnmarshalJSON(data []byte) error {
	var raw struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	seen := make(map[string]bool, len(raw.Categories))
	for _, c := range raw.Categories {
		if seen[c] {
			return fmt.Errorf("duplicate category %q", c)
		}
		seen[c] = true
	}
	*e = *newEncoder(raw.Categories)
	return nil
}

// TargetKey is the reserved name the target encoder is reported under.
const TargetKey = "target"

// Registry holds the encoders fitted during preprocessing. Feature encoders
// are keyed by column name; the target encoder is kept apart so a feature
// literally named "target" cannot collide with it.
type Registry struct {
	Columns map[string]*Encoder `json:"columns"`
	Target  *Encoder            `json:"target,omitempty"`
}

func NewRegistry() *Registry {
	return &Registry{Columns: make(map[string]*Encoder)}
}

// Lookup returns the encoder for a feature column, or the target encoder for TargetKey.
func (r *Registry) Lookup(name string) (*Encoder, bool) {
	if name == TargetKey && r.Target != nil {
		return r.Target, true
	}
	e, ok := r.Columns[name]
	return e, ok
}

// DecodeClass returns the original label of a class index, falling back to
// the index itself for numeric targets.
func (r *Registry) DecodeClass(class int) string {
	if r.Target != nil {
		if label, ok := r.Target.Decode(class); ok {
			return label
		}
	}
	return strconv.Itoa(class)
}

// EncodeRecord turns one raw inference record into a feature row ordered as
// features. Missing columns, nulls, non-numeric values for numeric features
// and unseen categories are schema errors.
func (r *Registry) EncodeRecord(features []string, record map[string]interface{}) ([]float64, error) {
	if record == nil {
		return nil, errorutil.New(errorutil.ErrInvalidInputSchema, "record is empty")
	}

	row := make([]float64, len(features))
	for i, name := range features {
		raw, ok := record[name]
		if !ok {
			return nil, errorutil.New(errorutil.ErrInvalidInputSchema, "missing feature column %q", name)
		}
		if raw == nil {
			return nil, errorutil.New(errorutil.ErrInvalidInputSchema, "feature column %q is null", name)
		}

		if enc, categorical := r.Columns[name]; categorical {
			category, err := categoryString(raw)
			if err != nil {
				return nil, errorutil.Wrap(errorutil.ErrInvalidInputSchema, err, "feature column %q", name)
			}
			code, ok := enc.Encode(category)
			if !ok {
				return nil, errorutil.New(errorutil.ErrInvalidInputSchema, "unseen category %q in column %q", category, name)
			}
			row[i] = float64(code)
			continue
		}

		v, err := numericValue(raw)
		if err != nil {
			return nil, errorutil.Wrap(errorutil.ErrInvalidInputSchema, err, "feature column %q", name)
		}
		row[i] = v
	}
	return row, nil
}

// categoryString renders a JSON value the way the CSV cell would hold it.
func categoryString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		if t {
			return "True", nil
		}
		return "False", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func numericValue(v interface{}) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, ok := parseNumber(t)
		if !ok {
			return 0, fmt.Errorf("expected a number, got %q", t)
		}
		f = parsed
	case bool:
		return 0, fmt.Errorf("expected a number, got boolean %v", t)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value must be finite")
	}
	return f, nil
}

// parseNumber accepts finite decimal numbers only.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

package schema

import "github.com/shopspring/decimal"

// Has reports whether key survived validation.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Decimal returns a Decimal field, or zero when absent.
func (r Record) Decimal(key string) decimal.Decimal {
	d, _ := r[key].(decimal.Decimal)
	return d
}

// DecimalPtr returns a Decimal field, or nil when absent.
func (r Record) DecimalPtr(key string) *decimal.Decimal {
	d, ok := r[key].(decimal.Decimal)
	if !ok {
		return nil
	}
	return &d
}

// Int returns an Int field, or zero when absent.
func (r Record) Int(key string) int64 {
	n, _ := r[key].(int64)
	return n
}

// IntPtr returns an Int field, or nil when absent.
func (r Record) IntPtr(key string) *int64 {
	n, ok := r[key].(int64)
	if !ok {
		return nil
	}
	return &n
}

// String returns a String field, or "" when absent.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Bool returns a Bool field, or false when absent.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// List returns a List field.
func (r Record) List(key string) []any {
	l, _ := r[key].([]any)
	return l
}

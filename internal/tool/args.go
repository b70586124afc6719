package tool

// Args is an argument record that has passed schema validation. Integer
// properties hold int64, number properties float64, arrays []any and
// objects map[string]any.
type Args map[string]any

// Has reports whether the argument was supplied.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns a string argument or def when absent.
func (a Args) String(name, def string) string {
	if v, ok := a[name].(string); ok {
		return v
	}
	return def
}

// Int returns an integer argument or def when absent.
func (a Args) Int(name string, def int64) int64 {
	if v, ok := a[name].(int64); ok {
		return v
	}
	return def
}

// Float returns a number argument or def when absent.
func (a Args) Float(name string, def float64) float64 {
	if v, ok := a[name].(float64); ok {
		return v
	}
	return def
}

// Bool returns a boolean argument or def when absent.
func (a Args) Bool(name string, def bool) bool {
	if v, ok := a[name].(bool); ok {
		return v
	}
	return def
}

// Strings returns an array-of-strings argument. Non-string elements are skipped.
func (a Args) Strings(name string) []string {
	items, ok := a[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

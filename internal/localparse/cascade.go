package localparse

// Result carries the outcome of a single local parser attempt.
type Result struct {
	Mode  string
	Value any
}

// TryAll runs the JSON, query-string, key-value, and CSV parsers in the
// declared order, stopping at the first success. Failures are swallowed.
func TryAll(input string) (Result, bool) {
	if ok, v := ParseJSON(input); ok {
		return Result{Mode: "json", Value: v}, true
	}
	if ok, v := ParseQuery(input); ok {
		return Result{Mode: "query", Value: v}, true
	}
	if ok, v := ParseKV(input); ok {
		return Result{Mode: "kv", Value: v}, true
	}
	if ok, v := ParseCSV(input); ok {
		return Result{Mode: "csv", Value: v}, true
	}
	return Result{}, false
}

// TryOne runs a single named local parser.
func TryOne(mode, input string) (Result, bool) {
	switch mode {
	case "json":
		if ok, v := ParseJSON(input); ok {
			return Result{Mode: "json", Value: v}, true
		}
	case "query":
		if ok, v := ParseQuery(input); ok {
			return Result{Mode: "query", Value: v}, true
		}
	case "kv":
		if ok, v := ParseKV(input); ok {
			return Result{Mode: "kv", Value: v}, true
		}
	case "csv":
		if ok, v := ParseCSV(input); ok {
			return Result{Mode: "csv", Value: v}, true
		}
	}
	return Result{}, false
}

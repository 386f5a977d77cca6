package xrepo

// Query hint names understood by SQLEngine. Other engines may define more;
// unknown hints are recorded and ignored.
const (
	HintFetchSize = "xrepo.fetchSize"
	HintCacheable = "xrepo.cacheable"
	HintReadOnly  = "xrepo.readOnly"
)

// StreamingHints returns the canonical hint set for streaming queries: the
// given fetch size, caching disabled and read-only execution.
//
//	s, err := repo.FindAllStream(ctx, spec, xrepo.WithHints(xrepo.StreamingHints(500)))
func StreamingHints(fetchSize int) map[string]any {
	return map[string]any{
		HintFetchSize: fetchSize,
		HintCacheable: false,
		HintReadOnly:  true,
	}
}

func hintBool(hints map[string]any, name string) bool {
	switch v := hints[name].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

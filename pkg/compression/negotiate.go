package compression

import (
	"strconv"
	"strings"
)

// Negotiate picks the first of offered that the Accept-Encoding field value
// allows with a non-zero weight, or nil when the client should get the
// identity coding. An empty field value means identity only.
func Negotiate(acceptEncoding string, offered []Compressor) Compressor {
	weights := parseAcceptEncoding(acceptEncoding)
	if len(weights) == 0 {
		return nil
	}
	for _, c := range offered {
		q, ok := weights[c.ContentEncoding()]
		if !ok {
			q, ok = weights["*"]
		}
		if ok && q > 0 {
			return c
		}
	}
	return nil
}

// parseAcceptEncoding maps lower-cased coding names to their weight.
// Members with an unparseable weight are skipped.
func parseAcceptEncoding(s string) map[string]float64 {
	weights := map[string]float64{}
	for _, member := range strings.Split(s, ",") {
		name, params, _ := strings.Cut(member, ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		q := 1.0
		if params != "" {
			k, v, _ := strings.Cut(strings.TrimSpace(params), "=")
			if strings.EqualFold(strings.TrimSpace(k), "q") {
				f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil || f < 0 || f > 1 {
					continue
				}
				q = f
			}
		}
		if name == "x-gzip" {
			name = "gzip"
		}
		weights[name] = q
	}
	return weights
}

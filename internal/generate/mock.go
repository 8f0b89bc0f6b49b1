package generate

import (
	"context"
	"sort"
	"strings"
)

// Mock replies from a fixed table and makes no network calls.
type Mock struct {
	responses map[string]string
	keys      []string
}

var _ Generator = (*Mock)(nil)

// NewMock returns a mock that replies with the value of the first key contained in the function text. Keys are tried longest first (then lexically), so a specific
// key wins over a key it contains. Text matching no key gets "".
func NewMock(responses map[string]string) *Mock {
	keys := make([]string, 0, len(responses))
	for k := range responses {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return &Mock{responses: responses, keys: keys}
}

func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, k := range m.keys {
		if strings.Contains(req.FunctionText, k) {
			return sanitize(m.responses[k]), nil
		}
	}
	return "", nil
}

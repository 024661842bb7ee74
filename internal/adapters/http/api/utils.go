package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/spc/internal/domain/capability"
	"github.com/okian/spc/internal/domain/types"
)

// queryNumber parses an optional float query parameter. An absent or
// blank parameter is undefined.
func queryNumber(r *http.Request, name string) (types.Number, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return types.None(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return types.None(), fmt.Errorf("invalid %s %q", name, raw)
	}
	return types.Some(v), nil
}

// queryLimits reads lsl, usl and target from the query string.
func queryLimits(r *http.Request) (capability.SpecLimits, error) {
	var (
		limits capability.SpecLimits
		err    error
	)
	if limits.LSL, err = queryNumber(r, "lsl"); err != nil {
		return limits, err
	}
	if limits.USL, err = queryNumber(r, "usl"); err != nil {
		return limits, err
	}
	if limits.Target, err = queryNumber(r, "target"); err != nil {
		return limits, err
	}
	return limits, nil
}

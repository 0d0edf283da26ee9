package coordinator

import (
	"regexp"
	"strconv"
	"time"
)

// datetimeRegexp extracts the header <time datetime="..."> render.Renderer
// writes (render/render.go renderHeader), used by resumeCursor to recover
// the previous run's timestamps without re-fetching the API.
var datetimeRegexp = regexp.MustCompile(`<time datetime="([^"]+)">`)

// periodRegexp matches the --period flag's `YYYY`, `YYYYMM`, or `YYYYMMDD`
// forms (spec.md §6 "--period").
var periodRegexp = regexp.MustCompile(`^(\d{4})(\d{2})?(\d{2})?$`)

// parsePeriod turns a --period value into the Unix-time lower bound it
// implies: everything at or after the start of that year/month/day.
func parsePeriod(period string) (int64, bool) {
	m := periodRegexp.FindStringSubmatch(period)
	if m == nil {
		return 0, false
	}

	year, _ := strconv.Atoi(m[1])
	month := 1
	day := 1
	if m[2] != "" {
		month, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		day, _ = strconv.Atoi(m[3])
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Unix(), true
}

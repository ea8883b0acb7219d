package climate

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// DataFormat is the file format requested from the remote service.
type DataFormat string

// FormatNetCDF is the only format requested; the service answers with
// NetCDF4 files.
const FormatNetCDF DataFormat = "netcdf"

// DateRange is an inclusive start/end pair of ISO dates (YYYY-MM-DD).
// Ordering is the caller's responsibility.
type DateRange struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// String returns the single interval form accepted by the remote service.
func (d DateRange) String() string {
	return d.Start + "/" + d.End
}

// Params identifies a single point time series retrieval.
// Latitude/Longitude are passed through unchecked.
type Params struct {
	Variable  string    `json:"variable" validate:"required"`
	DateRange DateRange `json:"dateRange"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// Key returns a canonical string key for indexing retrievals of the same
// variable at the same location.
func (p Params) Key() string {
	return p.Variable + ":" + formatCoord(p.Latitude) + ":" + formatCoord(p.Longitude)
}

// Location is the point the series is extracted at.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Request is the payload submitted to the remote service.
type Request struct {
	Variable   []string   `json:"variable"`
	Date       []string   `json:"date"`
	Location   Location   `json:"location"`
	DataFormat DataFormat `json:"data_format"`
}

// NewRequest builds the request payload for p.
func NewRequest(p Params) Request {
	return Request{
		Variable: []string{p.Variable},
		Date:     []string{p.DateRange.String()},
		Location: Location{
			Longitude: p.Longitude,
			Latitude:  p.Latitude,
		},
		DataFormat: FormatNetCDF,
	}
}

// Filename returns the deterministic output filename for p:
// {variable}_{start}_{end}_{lat}_{lng}.nc
func Filename(p Params) string {
	return p.Variable + "_" + p.DateRange.Start + "_" + p.DateRange.End + "_" +
		formatCoord(p.Latitude) + "_" + formatCoord(p.Longitude) + ".nc"
}

// formatCoord prints the shortest round-tripping decimal, keeping a ".0"
// on whole numbers so 10 and 10.0 name the same file.
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

// Series is an hourly time series of one variable at one point.
// ValidTime and Values are parallel slices.
type Series struct {
	Variable  string      `json:"variable"`
	ValidTime []time.Time `json:"validTime"`
	Values    []float64   `json:"values"`
}

// Len returns the number of observations.
func (s Series) Len() int {
	return len(s.Values)
}

// Years returns the distinct UTC years present, ascending.
func (s Series) Years() []int {
	var years []int
	seen := make(map[int]struct{})
	for _, ts := range s.ValidTime {
		y := ts.UTC().Year()
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

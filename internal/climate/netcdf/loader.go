// Package netcdf reads point time series out of the NetCDF files returned
// by the climate data service. Both NetCDF4 (HDF5) and classic files are
// supported.
package netcdf

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	ncdf "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/i474232898/climate-timeseries/internal/climate"
)

// TimeVariable is the name of the time coordinate in retrieved files.
const TimeVariable = "valid_time"

// Loader implements climate.SeriesLoader for NetCDF files.
type Loader struct{}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadSeries reads valid_time and variable from the file at path. An empty
// variable selects the first data variable laid out along valid_time.
// Fill values are returned as NaN.
func (l *Loader) LoadSeries(path, variable string) (climate.Series, error) {
	nc, err := ncdf.Open(path)
	if err != nil {
		return climate.Series{}, fmt.Errorf("open netcdf: %w", err)
	}
	defer nc.Close()

	names := nc.ListVariables()
	if !contains(names, TimeVariable) {
		return climate.Series{}, fmt.Errorf("%w: no %s variable", climate.ErrInputShape, TimeVariable)
	}
	tv, err := nc.GetVariable(TimeVariable)
	if err != nil {
		return climate.Series{}, fmt.Errorf("read %s: %w", TimeVariable, err)
	}

	units, _ := attribute(tv, "units").(string)
	unit, epoch, err := ParseTimeUnits(units)
	if err != nil {
		return climate.Series{}, fmt.Errorf("%w: %v", climate.ErrInputShape, err)
	}

	if variable == "" {
		variable = dataVariable(nc, names)
		if variable == "" {
			return climate.Series{}, fmt.Errorf("%w: no data variable along %s", climate.ErrInputShape, TimeVariable)
		}
	} else if !contains(names, variable) {
		return climate.Series{}, fmt.Errorf("variable %q not found in %s", variable, path)
	}
	dv, err := nc.GetVariable(variable)
	if err != nil {
		return climate.Series{}, fmt.Errorf("read %s: %w", variable, err)
	}

	raw, err := toFloats(tv.Values)
	if err != nil {
		return climate.Series{}, fmt.Errorf("%s: %w", TimeVariable, err)
	}
	values, err := toFloats(dv.Values)
	if err != nil {
		return climate.Series{}, fmt.Errorf("%s: %w", variable, err)
	}
	if len(values) != len(raw) {
		return climate.Series{}, fmt.Errorf("%w: %s has %d values for %d timestamps",
			climate.ErrInputShape, variable, len(values), len(raw))
	}

	if fill, err := toFloats(attribute(dv, "_FillValue")); err == nil && len(fill) > 0 {
		for i, v := range values {
			if v == fill[0] {
				values[i] = math.NaN()
			}
		}
	}

	series := climate.Series{
		Variable:  variable,
		ValidTime: make([]time.Time, len(raw)),
		Values:    values,
	}
	for i, v := range raw {
		series.ValidTime[i] = epoch.Add(time.Duration(v * float64(unit))).Round(time.Second).UTC()
	}
	return series, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func attribute(v *api.Variable, name string) interface{} {
	if v.Attributes == nil {
		return nil
	}
	val, _ := v.Attributes.Get(name)
	return val
}

// dataVariable returns the first non-coordinate variable whose leading
// dimension is valid_time.
func dataVariable(nc api.Group, names []string) string {
	for _, name := range names {
		if name == TimeVariable {
			continue
		}
		v, err := nc.GetVariable(name)
		if err != nil {
			continue
		}
		dims := v.Dimensions
		if len(dims) == 0 || dims[0] != TimeVariable {
			continue
		}
		if len(dims) == 1 && dims[0] == name {
			continue
		}
		return name
	}
	return ""
}

// toFloats flattens a numeric scalar or (nested) slice into float64s.
// Data variables of shape (valid_time, 1, 1) come back as nested slices.
func toFloats(v interface{}) ([]float64, error) {
	if v == nil {
		return nil, fmt.Errorf("no data")
	}
	var out []float64
	if err := appendFloats(reflect.ValueOf(v), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func appendFloats(rv reflect.Value, out *[]float64) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := appendFloats(rv.Index(i), out); err != nil {
				return err
			}
		}
	case reflect.Float32, reflect.Float64:
		*out = append(*out, rv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*out = append(*out, float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*out = append(*out, float64(rv.Uint()))
	default:
		return fmt.Errorf("unsupported data type %s", rv.Type())
	}
	return nil
}

var unitDurations = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second, "s": time.Second,
	"minute": time.Minute, "minutes": time.Minute, "min": time.Minute,
	"hour": time.Hour, "hours": time.Hour, "h": time.Hour,
	"day": 24 * time.Hour, "days": 24 * time.Hour, "d": 24 * time.Hour,
}

var epochLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimeUnits parses CF time units of the form "<unit> since <reference>",
// e.g. "seconds since 1970-01-01" or "hours since 1900-01-01 00:00:00.0".
func ParseTimeUnits(units string) (time.Duration, time.Time, error) {
	unitStr, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unsupported time units %q", units)
	}
	unit, ok := unitDurations[strings.ToLower(strings.TrimSpace(unitStr))]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", unitStr)
	}

	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(ref, " UTC")
	ref = strings.TrimSuffix(ref, ".0")
	for _, layout := range epochLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return unit, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unsupported time reference %q", ref)
}

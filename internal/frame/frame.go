// Package frame encodes one sampling cycle's readings into the line-oriented
// text protocol understood by the display controller:
//
//	HWMON:<yyyy-MM-dd HH:mm:ss>
//	<CPU|GPU>_<TEMP|LOAD>:<name>:<value><C|%>
//	END
package frame

import (
	"bytes"
	"fmt"
	"time"

	"codeberg.org/mutker/hwmond/internal/sensors"
)

const (
	headerTag  = "HWMON"
	terminator = "END"
	timeLayout = "2006-01-02 15:04:05"
)

// Encode serializes one cycle into a single payload: a header line with the
// timestamp, one line per reading with a present value in enumeration order,
// and a terminator line. Readings without a value are omitted entirely.
func Encode(ts time.Time, readings []sensors.Reading) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s:%s\n", headerTag, ts.Format(timeLayout))

	for _, reading := range readings {
		if !reading.Valid {
			continue
		}
		fmt.Fprintf(&buf, "%s_%s:%s:%.1f%s\n",
			categoryTag(reading.Category),
			kindTag(reading.Kind),
			reading.Name,
			reading.Value,
			unitTag(reading.Kind))
	}

	buf.WriteString(terminator)
	buf.WriteByte('\n')

	return buf.Bytes()
}

func categoryTag(category sensors.Category) string {
	if category == sensors.CategoryGPU {
		return "GPU"
	}
	return "CPU"
}

func kindTag(kind sensors.Kind) string {
	if kind == sensors.KindLoad {
		return "LOAD"
	}
	return "TEMP"
}

func unitTag(kind sensors.Kind) string {
	if kind == sensors.KindLoad {
		return "%"
	}
	return "C"
}

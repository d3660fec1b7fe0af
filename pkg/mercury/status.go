package mercury

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/goliatone/go-scptracker/components/tracker"
)

// Missing renders absent text fields.
const Missing = "-"

// ParseStatus extracts a snapshot from a status document. Fields under
// data.derived win; the raw controller fields are the fallback. A missing
// scp number falls back to requested.
func ParseStatus(body []byte, requested tracker.WidgetID) (tracker.StatusSnapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return tracker.StatusSnapshot{}, &tracker.ParseError{Source: "mercury", Err: err}
	}
	data, _ := doc["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	derived, _ := data["derived"].(map[string]any)
	if derived == nil {
		derived = map[string]any{}
	}

	snapshot := tracker.StatusSnapshot{
		FirmwareVersion: firstText(derived["firmware_version"]),
		Model:           firstText(derived["model"]),
		MAC:             firstText(derived["mac"], data["mac_addr"]),
		SCPNumber:       firstPresent(derived["scp_number"], data["scp_number"]),
		Capacity:        number(firstNonNil(derived["cards_capacity"], data["db_max"])),
		Total:           number(firstNonNil(derived["total_cards"], data["db_active"])),
		Raw:             doc,
	}
	if snapshot.FirmwareVersion == "" {
		snapshot.FirmwareVersion = firmwareFromRevisions(data["sft_rev_major"], data["sft_rev_minor"])
	}
	if snapshot.FirmwareVersion == "" {
		snapshot.FirmwareVersion = Missing
	}
	if snapshot.Model == "" {
		snapshot.Model = Missing
	}
	if snapshot.MAC == "" {
		snapshot.MAC = Missing
	}
	if snapshot.SCPNumber == "" {
		snapshot.SCPNumber = requested.String()
	}
	return snapshot, nil
}

// firmwareFromRevisions builds "major.mi.x" from the first two characters of
// the minor revision.
func firmwareFromRevisions(major, minor any) string {
	if major == nil || minor == nil {
		return ""
	}
	minorText := text(minor)
	if len(minorText) > 2 {
		minorText = minorText[:2]
	}
	return text(major) + "." + minorText + ".x"
}

// firstText returns the first non-empty text value.
func firstText(values ...any) string {
	for _, v := range values {
		if s := text(v); s != "" {
			return s
		}
	}
	return ""
}

// firstPresent returns the first non-null value as text, even when empty.
func firstPresent(values ...any) string {
	return text(firstNonNil(values...))
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// number accepts JSON numbers and numeric strings; anything else is 0.
func number(v any) int64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

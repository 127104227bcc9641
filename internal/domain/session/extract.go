package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ExtractedFields holds the typed attributes promoted from a raw event
// payload. Pointer fields are nil when the source value was missing or could
// not be coerced, keeping "unknown" distinguishable from a real zero.
type ExtractedFields struct {
	Timestamp time.Time

	URL   *string
	Title *string
	TabID *int

	PlatformType   *string
	PlatformName   *string
	QueryText      *string
	ClickedURL     *string
	IsAIAttributed bool
	ScrollDepth    *int
	DwellTimeMS    *int

	// Warnings lists fields whose values could not be coerced. They never
	// fail the event or the batch.
	Warnings []string
}

// ExtractFields derives typed attributes from a raw event. It never fails:
// the payload originates from an uncontrolled browser extension, so every
// malformed field degrades to absent. ingestedAt is substituted when the
// event timestamp is missing or non-numeric.
func ExtractFields(ev RawEvent, ingestedAt time.Time) ExtractedFields {
	var out ExtractedFields

	if millis, ok := coerceInt64(ev["timestamp"]); ok {
		out.Timestamp = time.UnixMilli(millis).UTC()
	} else {
		out.Timestamp = ingestedAt
		if _, present := ev["timestamp"]; present {
			out.Warnings = append(out.Warnings, "timestamp")
		}
	}

	out.URL = stringField(ev, "url")
	out.Title = stringField(ev, "title")
	if v, ok := coerceInt(ev["tabId"]); ok {
		out.TabID = &v
	}

	out.PlatformType = stringField(ev, "platformType")
	out.PlatformName = stringField(ev, "platformName")
	out.QueryText = stringField(ev, "queryText")

	// Click destination falls back to the product-URL alias.
	out.ClickedURL = stringField(ev, "destination")
	if out.ClickedURL == nil {
		out.ClickedURL = stringField(ev, "productUrl")
	}

	// AI attribution is the OR of the event-level flag and the
	// session-level referrer flag.
	out.IsAIAttributed = coerceBool(ev["isAIToEcommerce"]) || coerceBool(ev["sessionHasAIReferrer"])

	out.ScrollDepth = intField(ev, "scrollDepth", &out.Warnings)
	out.DwellTimeMS = intField(ev, "dwellTime", &out.Warnings)

	return out
}

// stringField returns a pointer to the field's value when it is a non-empty
// string, nil otherwise.
func stringField(ev RawEvent, key string) *string {
	if s, ok := ev[key].(string); ok && s != "" {
		return &s
	}
	return nil
}

// intField coerces a numeric field, recording a warning when a present value
// cannot be coerced. Absent stays absent silently.
func intField(ev RawEvent, key string, warnings *[]string) *int {
	v, present := ev[key]
	if !present || v == nil {
		return nil
	}
	if n, ok := coerceInt(v); ok {
		return &n
	}
	*warnings = append(*warnings, key)
	return nil
}

// coerceBool accepts a native boolean or the literal string "true"; anything
// else is false.
func coerceBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	default:
		return false
	}
}

func coerceInt(v interface{}) (int, bool) {
	n, ok := coerceInt64(v)
	return int(n), ok
}

// coerceInt64 converts the value forms a JSON decoder can hand us into an
// integer. Fractional float values are truncated.
func coerceInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// BuildEvent assembles a structured event row from one surviving raw event.
// Session and upload ownership is filled in by the caller.
func BuildEvent(raw RawEvent, ingestedAt time.Time) (SessionEvent, []string, error) {
	payload, err := json.Marshal(raw)
	if err != nil {
		return SessionEvent{}, nil, fmt.Errorf("failed to encode event payload: %w", err)
	}

	eventType, _ := raw["type"].(string)
	fields := ExtractFields(raw, ingestedAt)

	ev := SessionEvent{
		EventType:      eventType,
		Timestamp:      fields.Timestamp,
		EventData:      payload,
		URL:            fields.URL,
		Title:          fields.Title,
		TabID:          fields.TabID,
		PlatformType:   fields.PlatformType,
		PlatformName:   fields.PlatformName,
		QueryText:      fields.QueryText,
		ClickedURL:     fields.ClickedURL,
		IsAIAttributed: fields.IsAIAttributed,
		ScrollDepth:    fields.ScrollDepth,
		DwellTimeMS:    fields.DwellTimeMS,
	}
	return ev, fields.Warnings, nil
}

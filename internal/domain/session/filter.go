package session

// Event type tags recognized by the pipeline.
const (
	EventSessionStart     = "session_start"
	EventSessionEnd       = "session_end"
	EventPageVisit        = "page_visit"
	EventTabSwitch        = "tab_switch"
	EventClick            = "click"
	EventInput            = "input"
	EventFormSubmit       = "form_submit"
	EventAIQueryInput     = "ai_query_input"
	EventAIResultClick    = "ai_result_click"
	EventEcommerceVisit   = "ecommerce_visit"
	EventProductView      = "product_view"
	EventProductClick     = "product_click"
	EventConversion       = "conversion"
	EventScrollMilestone  = "scroll_milestone"
	EventVisibilityChange = "visibility_change"
)

// allowedEventTypes is the fixed allow-list of analytically valuable event
// types. Continuous high-frequency telemetry (raw scroll positions, mouse
// moves) is excluded to bound storage growth.
var allowedEventTypes = map[string]struct{}{
	EventSessionStart:     {},
	EventSessionEnd:       {},
	EventPageVisit:        {},
	EventTabSwitch:        {},
	EventClick:            {},
	EventInput:            {},
	EventFormSubmit:       {},
	EventAIQueryInput:     {},
	EventAIResultClick:    {},
	EventEcommerceVisit:   {},
	EventProductView:      {},
	EventProductClick:     {},
	EventConversion:       {},
	EventScrollMilestone:  {},
	EventVisibilityChange: {},
}

// FilterEvents returns the events whose type tag is in the allow-list,
// preserving input order. An empty result is valid, not an error.
func FilterEvents(events []RawEvent) []RawEvent {
	filtered := make([]RawEvent, 0, len(events))
	for _, ev := range events {
		eventType, ok := ev["type"].(string)
		if !ok {
			continue
		}
		if _, allowed := allowedEventTypes[eventType]; allowed {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

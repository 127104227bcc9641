package metrics

import (
	"sort"
	"unicode/utf8"

	"github.com/vinli0921/GEO-exploration/internal/domain/session"
)

const platformTypeAI = "ai"

// computeFromEvents derives a session's metrics from its persisted event
// rows. Pure and order-independent over the event set: recomputing on an
// unchanged set yields identical derived values.
func computeFromEvents(sess *session.Session, events []session.SessionEvent) *SessionMetrics {
	m := &SessionMetrics{
		SessionID:     sess.ID,
		SessionKey:    sess.SessionID,
		ParticipantID: sess.ParticipantID,
	}

	platforms := make(map[string]struct{})
	totalQueryChars := 0
	var firstAI, firstConversion *session.SessionEvent

	for i := range events {
		ev := &events[i]

		switch ev.EventType {
		case session.EventAIQueryInput:
			m.QueryCount++
			if ev.QueryText != nil {
				totalQueryChars += utf8.RuneCountInString(*ev.QueryText)
			}
		case session.EventAIResultClick:
			m.AIResultClicks++
		case session.EventEcommerceVisit:
			m.EcommerceVisits++
		case session.EventProductView:
			m.ProductsViewed++
		case session.EventConversion:
			m.Conversions++
			if ev.IsAIAttributed {
				m.AIAttributedConversions++
			}
			if firstConversion == nil || ev.Timestamp.Before(firstConversion.Timestamp) {
				firstConversion = ev
			}
		}

		onAIPlatform := ev.PlatformType != nil && *ev.PlatformType == platformTypeAI
		if onAIPlatform {
			if ev.PlatformName != nil {
				platforms[*ev.PlatformName] = struct{}{}
			}
			if ev.DwellTimeMS != nil {
				m.AIDwellTimeSeconds += float64(*ev.DwellTimeMS) / 1000
			}
		}

		isAIInteraction := onAIPlatform ||
			ev.EventType == session.EventAIQueryInput ||
			ev.EventType == session.EventAIResultClick
		if isAIInteraction {
			if firstAI == nil || ev.Timestamp.Before(firstAI.Timestamp) {
				firstAI = ev
			}
		}
	}

	if m.QueryCount > 0 {
		m.AvgQueryLength = float64(totalQueryChars) / float64(m.QueryCount)
	}

	// Sorted for deterministic recomputation output
	m.AIPlatformsUsed = make([]string, 0, len(platforms))
	for name := range platforms {
		m.AIPlatformsUsed = append(m.AIPlatformsUsed, name)
	}
	sort.Strings(m.AIPlatformsUsed)

	if firstAI != nil && firstConversion != nil {
		delta := firstConversion.Timestamp.Sub(firstAI.Timestamp).Seconds()
		m.AIToPurchaseSeconds = &delta
	}

	return m
}

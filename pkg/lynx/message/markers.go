// Package message classifies decoded FinishLynx text and parses its records.
package message

import (
	"slices"
	"strings"

	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

// markers sent by the FinishLynx scoreboard scripts
const (
	MarkerRunningTime        = "Running time:"
	MarkerStartListHeader    = "*** StartListHeader ***"
	MarkerStartedHeader      = "*** StartedHeader ***"
	MarkerResultsHeader      = "*** ResultsHeader"
	MarkerTrailer            = "*** StartList/Started/ResultsTrailer ***"
	MarkerAnnouncementHeader = "*** AnnouncementHeader ***"
	MarkerAnnouncementFooter = "*** AnnouncementTrailer ***"
)

var headerMarkers = []string{
	MarkerRunningTime,
	MarkerStartListHeader,
	MarkerStartedHeader,
	MarkerResultsHeader,
	MarkerAnnouncementHeader,
}

// Message is a classified piece of decoded text
type Message struct {
	Kind model.MessageType
	Text string
}

// DetectMessageType classifies text by the markers it contains.
// The order of the checks matters: a running time may be part of other messages.
func DetectMessageType(text string) model.MessageType {
	switch {
	case strings.Contains(text, MarkerRunningTime):
		return model.MTRunningTime
	case strings.Contains(text, MarkerStartListHeader):
		return model.MTStartList
	case strings.Contains(text, MarkerStartedHeader):
		return model.MTStarted
	case strings.Contains(text, MarkerResultsHeader):
		return model.MTResults
	case strings.Contains(text, MarkerAnnouncementHeader):
		return model.MTAnnouncement
	default:
		return model.MTUnknown
	}
}

// IsCompleteStartList reports whether text contains both start list header and trailer.
func IsCompleteStartList(text string) bool {
	return strings.Contains(text, MarkerStartListHeader) &&
		strings.Contains(text, MarkerTrailer)
}

var racerSectionMarkers = []string{
	MarkerStartListHeader,
	MarkerStartedHeader,
	MarkerResultsHeader,
}

func hasRacerSectionHeader(text string) bool {
	for _, m := range racerSectionMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// MarkerSummary lists the known markers found in text.
func MarkerSummary(text string) []string {
	ret := make([]string, 0)
	for _, m := range slices.Concat(headerMarkers, []string{MarkerTrailer, MarkerAnnouncementFooter}) {
		if strings.Contains(text, m) {
			ret = append(ret, strings.Trim(m, "*: "))
		}
	}
	return ret
}

package message

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

var runningTime = regexp.MustCompile(`Running time:\s*(\d+:)?(\d+\.\d+)`)

// header labels of a start list
const (
	labelOfficial        = "OFFICIAL/UNOFFICIAL"
	labelEventName       = "Event name"
	labelWind            = "Wind"
	labelEventNumber     = "Event number"
	labelRoundNumber     = "Round number"
	labelHeatNumber      = "Heat number"
	labelEeeRhhName      = "EEE-R-HH Name"
	labelStartType       = "AUTO/MANUAL start"
	labelNumberOfResults = "Number of results"
)

// ParseRunningTime extracts the race clock from "Running time: 1:23.4" or
// "Running time: 23.4". It returns nil if no running time is found.
func (p *Parser) ParseRunningTime(text string) *time.Duration {
	m := runningTime.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	minutes := 0
	if m[1] != "" {
		v, err := strconv.Atoi(strings.TrimSuffix(m[1], ":"))
		if err != nil {
			p.log.Warn("invalid running time minutes", log.String("text", m[0]))
			return nil
		}
		minutes = v
	}
	sec, err := decimal.NewFromString(m[2])
	if err != nil {
		p.log.Warn("invalid running time seconds", log.String("text", m[0]))
		return nil
	}
	d := time.Duration(minutes)*time.Minute +
		time.Duration(sec.Mul(decimal.NewFromInt(int64(time.Second))).IntPart())
	return &d
}

// ParseHeader extracts the event data from the "Label: value" lines of a start list.
// Unknown labels are ignored. It returns nil if a number cannot be parsed.
//
//nolint:cyclop // label switch
func (p *Parser) ParseHeader(text string) *model.RaceEvent {
	ret := &model.RaceEvent{StartType: model.StartTypeAuto}
	var err error
	for _, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, labelOfficial):
			ret.IsOfficial = strings.ToUpper(labelValue(trimmed)) == "OFFICIAL"
		case strings.HasPrefix(trimmed, labelEventName):
			ret.EventName = labelValue(trimmed)
		case strings.HasPrefix(trimmed, labelWind):
			ret.Wind = labelValue(trimmed)
		case strings.HasPrefix(trimmed, labelEventNumber):
			ret.EventNumber = labelValue(trimmed)
		case strings.HasPrefix(trimmed, labelRoundNumber):
			ret.RoundNumber, err = labelInt(trimmed)
		case strings.HasPrefix(trimmed, labelHeatNumber):
			ret.HeatNumber, err = labelInt(trimmed)
		case strings.HasPrefix(trimmed, labelEeeRhhName):
			ret.EeeRhhName = labelValue(trimmed)
		case strings.HasPrefix(trimmed, labelStartType):
			if strings.ToUpper(labelValue(trimmed)) == "AUTO" {
				ret.StartType = model.StartTypeAuto
			} else {
				ret.StartType = model.StartTypeManual
			}
		case strings.HasPrefix(trimmed, labelNumberOfResults):
			ret.NumberOfResults, err = labelInt(trimmed)
		}
		if err != nil {
			p.log.Warn("invalid start list header", log.String("line", trimmed), log.ErrorField(err))
			return nil
		}
	}
	return ret
}

// ParseAnnouncement joins the non blank lines between the announcement markers.
// An announcement without content yields an empty string.
func (p *Parser) ParseAnnouncement(text string) string {
	_, body, found := strings.Cut(text, MarkerAnnouncementHeader)
	if !found {
		return ""
	}
	body, _, _ = strings.Cut(body, MarkerAnnouncementFooter)
	parts := make([]string, 0)
	for _, line := range splitLines(body) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

// value after the first colon
func labelValue(line string) string {
	_, v, found := strings.Cut(line, ":")
	if !found {
		return ""
	}
	return strings.TrimSpace(v)
}

func labelInt(line string) (int, error) {
	return strconv.Atoi(labelValue(line))
}

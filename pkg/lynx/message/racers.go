package message

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/fixedwidth"
	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/values"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

// Start list
// 0         1         2         3         4         5         6         7         8         9
// 0123456789012345678901234567890123456789012345678901234567890123456789012345678901234567890123456789
// Ln  Id   Name                                               Affiliation                    Laps
// --- ---- -------------------------------------------------- ------------------------------ -----
// 1   100  Person mcPersonFace                                Ottawa SSC"                    5
//
//nolint:lll // layout reference
var (
	slLane        = fixedwidth.Column{Start: 0, Length: 3}
	slID          = fixedwidth.Column{Start: 4, Length: 4}
	slName        = fixedwidth.Column{Start: 9, Length: 50}
	slAffiliation = fixedwidth.Column{Start: 60, Length: 30}
	slLaps        = fixedwidth.Column{Start: 91, Length: 5}
)

// Started
// 0         1         2         3         4         5         6
// 0123456789012345678901234567890123456789012345678901234567890123456
// Plc Ln  ReacTime Cum ST   Last ST  Best ST  Laps   Speed  Pace
// --- --- -------- -------- -------- -------- ------ ------ ------
// 1   3            56.4     12.1     10.2     0             11.280
var (
	stPlace = fixedwidth.Column{Start: 0, Length: 3}
	stLane  = fixedwidth.Column{Start: 4, Length: 3}
	stReac  = fixedwidth.Column{Start: 8, Length: 8}
	stCum   = fixedwidth.Column{Start: 17, Length: 8}
	stLast  = fixedwidth.Column{Start: 26, Length: 8}
	stBest  = fixedwidth.Column{Start: 35, Length: 8}
	stLaps  = fixedwidth.Column{Start: 44, Length: 6}
	stSpeed = fixedwidth.Column{Start: 51, Length: 6}
	stPace  = fixedwidth.Column{Start: 58, Length: 6}
)

// Results
// 0         1         2         3         4         5         6         7         8         9         10        11        12
// 0123456789012345678901234567890123456789012345678901234567890123456789012345678901234567890123456789012345678901234567890
// Plc Ln  Id   Name                                               Affiliation                    Time     Delta    ReacTime
// --- --- ---- -------------------------------------------------- ------------------------------ -------- -------- --------
// 1   2   261  Autumn Vandermeer                                  London SSC"                    56.31    56.310
//
//nolint:lll // layout reference
var (
	rsPlace       = fixedwidth.Column{Start: 0, Length: 3}
	rsLane        = fixedwidth.Column{Start: 4, Length: 3}
	rsID          = fixedwidth.Column{Start: 8, Length: 4}
	rsName        = fixedwidth.Column{Start: 13, Length: 50}
	rsAffiliation = fixedwidth.Column{Start: 64, Length: 30}
	rsTimes       = fixedwidth.Column{Start: 95, Length: 26}
)

const (
	unknown          = "Unknown"
	minStartListLine = 9
	minResultsLine   = 60
)

type (
	sectionMatcher func(trimmed string) bool
	lineParser     func(line string) (*model.Racer, error)
)

func startListSection(trimmed string) bool {
	return strings.Contains(trimmed, "Ln") &&
		strings.Contains(trimmed, "Id") &&
		strings.Contains(trimmed, "Name")
}

func startedSection(trimmed string) bool {
	return strings.HasPrefix(trimmed, "Plc Ln") && strings.Contains(trimmed, "ReacTime")
}

func resultsSection(trimmed string) bool {
	return strings.HasPrefix(trimmed, "Plc Ln  Id") && strings.Contains(trimmed, "Name")
}

// ParseStartList returns the racers of a start list message.
func (p *Parser) ParseStartList(text string) []*model.Racer {
	return p.parseSection("start list", text, startListSection,
		func(line string) (*model.Racer, error) {
			return parseStartListLine(strings.TrimSpace(line))
		})
}

// ParseStarted returns the racers of a started message.
// Racers without a place are included.
func (p *Parser) ParseStarted(text string) []*model.Racer {
	return p.parseSection("started", text, startedSection, parseStartedLine)
}

// ParseResults returns the racers of a results message which have a place.
func (p *Parser) ParseResults(text string) []*model.Racer {
	return p.parseSection("results", text, resultsSection, parseResultsLine)
}

// IsLapCountOnlyUpdate reports whether racers carry only lap counts.
// This is the case if no racer has a place or a split time and all have positive laps.
func IsLapCountOnlyUpdate(racers []*model.Racer) bool {
	if len(racers) == 0 {
		return false
	}
	for _, r := range racers {
		if r.HasSplitData() || !r.LapsRemaining.IsPositive() {
			return false
		}
	}
	return true
}

//nolint:nonamedreturns // needed for recover
func (p *Parser) parseSection(
	kind, text string,
	isHeader sectionMatcher,
	parse lineParser,
) (racers []*model.Racer) {
	racers = make([]*model.Racer, 0)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("error parsing racers",
				log.String("kind", kind),
				log.Any("panic", r),
				log.String("text", text))
			racers = make([]*model.Racer, 0)
		}
	}()

	inSection := false
	for _, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !inSection {
			inSection = isHeader(trimmed)
			continue
		}
		if strings.HasPrefix(trimmed, "---") {
			continue
		}
		if strings.HasPrefix(trimmed, MarkerTrailer) {
			break
		}
		racer, err := parse(line)
		if err != nil {
			p.log.Debug("skipping line",
				log.String("kind", kind),
				log.String("line", line),
				log.ErrorField(err))
			continue
		}
		if racer != nil {
			racers = append(racers, racer)
		}
	}
	p.log.Debug("parsed racers", log.String("kind", kind), log.Int("count", len(racers)))
	return racers
}

func parseStartListLine(line string) (*model.Racer, error) {
	if len(line) < minStartListLine {
		return nil, fmt.Errorf("line too short: %d chars", len(line))
	}
	lane, err := parseLane(line, slLane)
	if err != nil {
		return nil, err
	}
	return &model.Racer{
		Lane:        lane,
		ID:          fixedwidth.Int(line, slID, 0),
		Name:        fixedwidth.String(line, slName, unknown),
		Affiliation: affiliation(line, slAffiliation),
		Place:       model.NewPlaceRank(""),
		LapsRemaining: fixedwidth.Extract(line, slLaps,
			func(s string) (decimal.Decimal, error) { return values.ParseLaps(s), nil },
			decimal.Zero),
	}, nil
}

func parseStartedLine(line string) (*model.Racer, error) {
	lane, err := parseLane(line, stLane)
	if err != nil {
		return nil, err
	}
	return &model.Racer{
		Lane:                lane,
		Place:               model.NewPlaceRank(fixedwidth.String(line, stPlace, "")),
		ReactionTime:        duration(line, stReac),
		CumulativeSplitTime: duration(line, stCum),
		LastSplitTime:       duration(line, stLast),
		BestSplitTime:       duration(line, stBest),
		LapsRemaining:       values.ParseLaps(fixedwidth.String(line, stLaps, "")),
		Speed:               nullDecimal(line, stSpeed),
		Pace:                nullDecimal(line, stPace),
	}, nil
}

// records without place are not reported
func parseResultsLine(line string) (*model.Racer, error) {
	if len(line) < minResultsLine {
		return nil, fmt.Errorf("line too short: %d chars", len(line))
	}
	place := model.NewPlaceRank(fixedwidth.String(line, rsPlace, ""))
	if !place.HasPlace() {
		return nil, nil //nolint:nilnil // skipped record
	}
	lane, err := parseLane(line, rsLane)
	if err != nil {
		return nil, err
	}
	ret := &model.Racer{
		Lane:        lane,
		Place:       place,
		ID:          fixedwidth.Int(line, rsID, 0),
		Name:        fixedwidth.String(line, rsName, unknown),
		Affiliation: affiliation(line, rsAffiliation),
		HasFinished: true,
	}
	parts := strings.Fields(fixedwidth.String(line, rsTimes, ""))
	if len(parts) >= 1 {
		ret.FinalTime = values.ParseDuration(parts[0])
	}
	if len(parts) >= 2 {
		ret.DeltaTime = values.ParseDuration(parts[1])
	}
	if len(parts) >= 3 {
		ret.ReactionTime = values.ParseDuration(parts[2])
	}
	return ret, nil
}

func parseLane(line string, col fixedwidth.Column) (int, error) {
	raw := fixedwidth.String(line, col, "")
	lane, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid lane %q: %w", raw, err)
	}
	return lane, nil
}

// FinishLynx appends a quote to affiliations
func affiliation(line string, col fixedwidth.Column) string {
	v := strings.TrimSpace(strings.TrimRight(fixedwidth.String(line, col, ""), `"`))
	if v == "" {
		return unknown
	}
	return v
}

func duration(line string, col fixedwidth.Column) *time.Duration {
	return values.ParseDuration(fixedwidth.String(line, col, ""))
}

func nullDecimal(line string, col fixedwidth.Column) decimal.NullDecimal {
	return fixedwidth.Extract(line, col,
		func(s string) (decimal.NullDecimal, error) {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return decimal.NullDecimal{}, err
			}
			return decimal.NewNullDecimal(d), nil
		},
		decimal.NullDecimal{})
}

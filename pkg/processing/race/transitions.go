package race

import "github.com/mpapenbr/weblynx-service-go/pkg/model"

type (
	transitionKey struct {
		from model.RaceStatus
		kind model.MessageType
	}
	// transition describes the status change caused by a message.
	// raceStart triggers the half lap adjustment.
	transition struct {
		to        model.RaceStatus
		raceStart bool
	}
)

// Messages not listed here do not change the status.
// Results (with racers) finish and start lists reset the race from any status,
// they are handled in nextStatus.
var transitions = map[transitionKey]transition{
	{model.RaceStatusNotStarted, model.MTRunningTime}: {model.RaceStatusRunning, true},
	{model.RaceStatusNotStarted, model.MTStarted}:     {model.RaceStatusRunning, true},
	{model.RaceStatusRunning, model.MTStarted}:        {model.RaceStatusRunning, false},
	{model.RaceStatusPaused, model.MTStarted}:         {model.RaceStatusRunning, false},
	{model.RaceStatusFinished, model.MTStarted}:       {model.RaceStatusRunning, false},
	{model.RaceStatusRunning, model.MTManualPause}:    {model.RaceStatusPaused, false},
	{model.RaceStatusPaused, model.MTManualResume}:    {model.RaceStatusRunning, false},
}

func nextStatus(from model.RaceStatus, kind model.MessageType) (transition, bool) {
	switch kind {
	case model.MTStartList:
		return transition{to: model.RaceStatusNotStarted}, true
	case model.MTResults:
		return transition{to: model.RaceStatusFinished}, true
	}
	t, ok := transitions[transitionKey{from, kind}]
	return t, ok
}

package model

// MessageType identifies the kind of a decoded timing message
type MessageType int

const (
	MTUnknown      MessageType = 0
	MTRunningTime  MessageType = 1 // running clock of the current race
	MTStartList    MessageType = 2 // roster of a new race, resets the race state
	MTStarted      MessageType = 3 // in-race progress (places, splits, laps)
	MTResults      MessageType = 4 // final results
	MTAnnouncement MessageType = 5 // free text shown to viewers
	// manual controls, not sent by the timing device
	MTManualPause  MessageType = 10
	MTManualResume MessageType = 11
)

func (m MessageType) String() string {
	switch m {
	case MTRunningTime:
		return "RunningTime"
	case MTStartList:
		return "StartListHeader"
	case MTStarted:
		return "StartedHeader"
	case MTResults:
		return "ResultsHeader"
	case MTAnnouncement:
		return "Announcement"
	case MTManualPause:
		return "ManualPause"
	case MTManualResume:
		return "ManualResume"
	default:
		return "Unknown"
	}
}

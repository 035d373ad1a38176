package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageProgress   Stage = "RUN_PROGRESS"
	StageItemDone   Stage = "ITEM_DONE"
	StageItemFailed Stage = "ITEM_FAILED"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunError
}

// Event is one progress milestone of a run.
type Event struct {
	RunID string
	TS    time.Time
	Phase collector.Phase
	Stage Stage
	// URL is the item (query or article) for ITEM_* events.
	URL      string
	Strategy string
	Category collector.Category
	// Counters are cumulative for RUN_PROGRESS and RUN_DONE.
	Total     int
	Done      int
	Succeeded int
	Failed    int
	Dur       time.Duration
	Note      string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageProgress, StageRunDone, StageRunError:
	case StageItemDone, StageItemFailed:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

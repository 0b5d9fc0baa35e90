// Package selection decides which shuttle run, if any, the rider should
// board right now. It is pure: schedule in, verdict out, no I/O.
package selection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shuttle-pass/backend/internal/config"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

// ErrNoMatch is returned when no run qualifies in the inferred
// direction and the opposite-direction fallback also found nothing.
var ErrNoMatch = errors.New("no qualifying run in either direction")

// Direction is which of the two fixed route partitions the rider
// intends to travel.
type Direction int

const (
	Inbound Direction = iota + 1
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Inbound {
		return Outbound
	}
	return Inbound
}

// Classification says whether the chosen run already departed (Past,
// inside the grace window) or not yet (Future, inside the lookahead).
type Classification int

const (
	Past Classification = iota + 1
	Future
)

func (c Classification) String() string {
	switch c {
	case Past:
		return "past"
	case Future:
		return "future"
	default:
		return "unknown"
	}
}

// Result is a single chosen run. It is recomputed per call and never
// persisted.
type Result struct {
	ResourceID   int
	ResourceName string
	SlotID       int
	Date         string
	StartTime    string // HH:MM
	Direction    Direction
	Class        Classification
}

// Infer derives the travel direction from the time of day: before the
// critical time the rider's configured morning direction, after it the
// opposite. Deterministic for identical inputs.
func Infer(now time.Time, cfg config.Decision) Direction {
	minutes := now.Hour()*60 + now.Minute()
	morning := Outbound
	if cfg.MorningInbound {
		morning = Inbound
	}
	if minutes < cfg.CriticalTime {
		return morning
	}
	return morning.Opposite()
}

// DirectionOf maps a route id to its partition's direction. The second
// return is false for ids outside both partitions.
func DirectionOf(resourceID int, cfg config.Decision) (Direction, bool) {
	for _, id := range cfg.InboundRouteIDs {
		if id == resourceID {
			return Inbound, true
		}
	}
	for _, id := range cfg.OutboundRouteIDs {
		if id == resourceID {
			return Outbound, true
		}
	}
	return 0, false
}

// Select picks at most one qualifying run. forced, when non-nil,
// bypasses direction inference and disables the opposite-direction
// fallback (a reverse attempt must not bounce back).
//
// A slot qualifies when it is dated today, has margin left, and its
// departure lies in (-PrevInterval, NextInterval) minutes from now. The
// first qualifying slot in resource-then-slot iteration order wins;
// this is deliberately not a nearest-in-time rule.
func Select(resources []models.Resource, now time.Time, cfg config.Decision, forced *Direction) (Result, error) {
	if forced != nil {
		if res, ok := selectDirection(resources, now, cfg, *forced); ok {
			return res, nil
		}
		return Result{}, ErrNoMatch
	}

	direction := Infer(now, cfg)
	if res, ok := selectDirection(resources, now, cfg, direction); ok {
		return res, nil
	}
	if res, ok := selectDirection(resources, now, cfg, direction.Opposite()); ok {
		return res, nil
	}
	return Result{}, ErrNoMatch
}

func selectDirection(resources []models.Resource, now time.Time, cfg config.Decision, direction Direction) (Result, bool) {
	today := now.Format("2006-01-02")
	nowMinutes := now.Hour()*60 + now.Minute()

	for _, res := range resources {
		dir, ok := DirectionOf(res.ID, cfg)
		if !ok || dir != direction {
			continue
		}
		for _, slot := range res.Slots {
			if slot.Date != today || slot.Margin <= 0 {
				continue
			}
			slotMinutes, err := parseClock(slot.StartTime)
			if err != nil {
				continue
			}
			diff := slotMinutes - nowMinutes
			if diff <= -cfg.PrevInterval || diff >= cfg.NextInterval {
				continue
			}

			class := Future
			if diff <= 0 {
				class = Past
			}
			return Result{
				ResourceID:   res.ID,
				ResourceName: res.Name,
				SlotID:       slot.SlotID,
				Date:         slot.Date,
				StartTime:    slot.StartTime,
				Direction:    direction,
				Class:        class,
			}, true
		}
	}
	return Result{}, false
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(clock string) (int, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock time %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed clock time %q: %w", clock, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed clock time %q: %w", clock, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock time %q out of range", clock)
	}
	return hour*60 + minute, nil
}

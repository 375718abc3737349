package tracker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/ingest"
	"github.com/oukeidos/splitfill/internal/media"
	"github.com/oukeidos/splitfill/internal/splitter"
)

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrNotRetryable      = errors.New("half is not in the error state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotImage          = ingest.ErrNotImage
	ErrNoCredential      = gemini.ErrNoCredential
)

// Status is the stage a single half is in.
type Status int

const (
	StatusIdle Status = iota
	StatusSplitting
	StatusExpanding
	StatusDone
	StatusError
)

var statusNames = [...]string{"idle", "splitting", "expanding", "done", "error"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// allowed lists the legal next states. Idle→Expanding additionally
// requires a cropped half.
var allowed = map[Status][]Status{
	StatusIdle:      {StatusSplitting, StatusExpanding},
	StatusSplitting: {StatusIdle},
	StatusExpanding: {StatusDone, StatusError},
	StatusError:     {StatusExpanding},
}

// CanTransition reports whether from→to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Part selects one half of an item.
type Part string

const (
	PartA Part = "a"
	PartB Part = "b"
)

// Parts lists both halves in order.
var Parts = []Part{PartA, PartB}

// ParsePart accepts "a" or "b" in any case.
func ParsePart(s string) (Part, error) {
	switch Part(strings.ToLower(strings.TrimSpace(s))) {
	case PartA:
		return PartA, nil
	case PartB:
		return PartB, nil
	default:
		return "", fmt.Errorf("unknown part %q (use a or b)", s)
	}
}

// Half is one of the two crops of an item and its expansion state.
type Half struct {
	Cropped  *media.Image
	Expanded *media.Image
	Status   Status
	// Err is the public message of the last failure.
	Err string
}

// Ready reports whether the half can be dispatched for expansion.
func (h Half) Ready() bool {
	return h.Status == StatusIdle && h.Cropped != nil
}

func (h Half) clone() Half {
	out := h
	if h.Cropped != nil {
		c := *h.Cropped
		out.Cropped = &c
	}
	if h.Expanded != nil {
		e := *h.Expanded
		out.Expanded = &e
	}
	return out
}

// WorkItem is one uploaded image and its two halves.
type WorkItem struct {
	ID        string
	Name      string
	Original  media.Image
	SourceRef string
	Axis      splitter.Axis
	PartA     Half
	PartB     Half
	CreatedAt time.Time
}

// Half returns the half selected by p.
func (w WorkItem) Half(p Part) Half {
	if p == PartB {
		return w.PartB
	}
	return w.PartA
}

// Pending reports whether the item has never been split.
func (w WorkItem) Pending() bool {
	return w.PartA.Status == StatusIdle && w.PartB.Status == StatusIdle &&
		w.PartA.Cropped == nil && w.PartB.Cropped == nil
}

// Settled reports whether no work is running or queued for the item.
func (w WorkItem) Settled() bool {
	busy := func(h Half) bool { return h.Status == StatusSplitting || h.Status == StatusExpanding }
	return !busy(w.PartA) && !busy(w.PartB)
}

func (w *WorkItem) half(p Part) *Half {
	if p == PartB {
		return &w.PartB
	}
	return &w.PartA
}

func (w WorkItem) clone() WorkItem {
	out := w
	out.PartA = w.PartA.clone()
	out.PartB = w.PartB.clone()
	return out
}

// Event describes one applied transition.
type Event struct {
	ItemID string
	Part   Part
	From   Status
	To     Status
	Err    string
}

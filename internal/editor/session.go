package editor

import "fmt"

// SourceKind is what the pointer went down on.
type SourceKind string

const (
	SourceStage    SourceKind = "stage"
	SourceNode     SourceKind = "node"
	SourceExternal SourceKind = "external-item"
)

// Source identifies the dragged thing. For external items ID is the content id.
type Source struct {
	Kind SourceKind
	ID   string
}

func (s Source) valid() bool {
	if s.ID == "" {
		return false
	}
	switch s.Kind {
	case SourceStage, SourceNode, SourceExternal:
		return true
	default:
		return false
	}
}

// ZoneKind is the kind of registered drop zone under the pointer.
type ZoneKind string

const (
	// ZoneStage is a stage's own sortable slot in the flow's stage list.
	ZoneStage ZoneKind = "stage"
	// ZoneStageEnd is the trailing zone of a stage; for an empty stage it is
	// the whole stage body.
	ZoneStageEnd ZoneKind = "stage-end"
	// ZoneNode is the slot occupied by a node; dropping there means "before this node".
	ZoneNode ZoneKind = "node"
)

// Target is a drop zone. ID is the stage id for stage zones and the node id
// for node zones; StageID is the stage the zone belongs to.
type Target struct {
	Kind    ZoneKind
	ID      string
	StageID string
}

// Is reports whether dropping here would put the source onto itself.
func (t Target) Is(s Source) bool {
	switch s.Kind {
	case SourceNode:
		return t.Kind == ZoneNode && t.ID == s.ID
	case SourceStage:
		return t.Kind == ZoneStage && t.ID == s.ID
	default:
		return false
	}
}

// Outcome is emitted once per completed drag.
type Outcome struct {
	Source Source
	Target *Target
}

type SessionState int

const (
	StateIdle SessionState = iota
	StateActive
	StateResolving
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateResolving:
		return "resolving"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// DragSession tracks one pointer drag. It is not safe for concurrent use;
// Editor serializes access to it.
type DragSession struct {
	state  SessionState
	source Source
	target *Target
}

func (d *DragSession) State() SessionState {
	return d.state
}

func (d *DragSession) Source() Source {
	return d.source
}

// Target returns the current hover candidate, or nil.
func (d *DragSession) Target() *Target {
	if d.target == nil {
		return nil
	}
	t := *d.target
	return &t
}

// Begin moves Idle to Active.
func (d *DragSession) Begin(src Source) error {
	if d.state != StateIdle {
		return ErrSessionBusy
	}
	if !src.valid() {
		return fmt.Errorf("%w: kind=%q id=%q", ErrInvalidSource, src.Kind, src.ID)
	}
	d.state = StateActive
	d.source = src
	d.target = nil
	return nil
}

// Hover records the zone under the pointer. A nil target means no zone.
func (d *DragSession) Hover(target *Target) {
	if d.state != StateActive {
		return
	}
	if target == nil {
		d.target = nil
		return
	}
	t := *target
	d.target = &t
}

// Release ends the pointer gesture. When ok is true the session stays in
// Resolving until Settle is called; otherwise the outcome was discarded and
// the session is already Idle.
func (d *DragSession) Release() (Outcome, bool) {
	if d.state != StateActive {
		return Outcome{}, false
	}
	d.state = StateResolving
	if d.target == nil || d.target.Is(d.source) {
		d.reset()
		return Outcome{}, false
	}
	t := *d.target
	return Outcome{Source: d.source, Target: &t}, true
}

// Settle moves Resolving back to Idle once the outcome has been handled.
func (d *DragSession) Settle() {
	if d.state == StateResolving {
		d.reset()
	}
}

// Cancel abandons the drag. Calling it on an idle session does nothing.
func (d *DragSession) Cancel() {
	d.reset()
}

func (d *DragSession) reset() {
	d.state = StateIdle
	d.source = Source{}
	d.target = nil
}

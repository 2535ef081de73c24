// File: api/schemas/actions.go
package schemas

import (
	"fmt"
	"time"

	json "github.com/json-iterator/go"
)

// Normalized observation space. Screenshots sent to inference are letterboxed
// into this fixed logical resolution, and every coordinate in an Action refers
// to it until the executor boundary converts to device pixels.
const (
	NormalizedWidth  = 1000
	NormalizedHeight = 1000
)

// ActionKind is an enumeration of every action the inference service may
// propose. Using a custom type ensures only predefined constants can appear
// where an ActionKind is expected.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionRightClick  ActionKind = "right_click"
	ActionTypeText    ActionKind = "type_text"
	ActionKeyPress    ActionKind = "key_press"
	ActionScroll      ActionKind = "scroll"
	ActionDrag        ActionKind = "drag"
	ActionWait        ActionKind = "wait"
	ActionScreenshot  ActionKind = "screenshot"
	ActionFinish      ActionKind = "finish"
	ActionFail        ActionKind = "fail"
	ActionConfirm     ActionKind = "confirm"
)

// ImpactLevel classifies how consequential an action is. Medium and high
// impact actions may be gated behind user confirmation.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// Action is the tagged union exchanged with the inference service. Kind
// selects the variant; only the fields that variant requires are populated.
// Coordinates are in the normalized observation space.
type Action struct {
	Kind   ActionKind `json:"type"`
	X      int        `json:"x,omitempty"`
	Y      int        `json:"y,omitempty"`
	Button string     `json:"button,omitempty"`

	Text string `json:"text,omitempty"`
	Key  string `json:"key,omitempty"`

	Direction string `json:"direction,omitempty"`
	Amount    int    `json:"amount,omitempty"`

	StartX int `json:"start_x,omitempty"`
	StartY int `json:"start_y,omitempty"`
	EndX   int `json:"end_x,omitempty"`
	EndY   int `json:"end_y,omitempty"`

	// DurationSec is the wait duration in seconds, matching the wire format.
	DurationSec float64 `json:"duration,omitempty"`

	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`

	Description string      `json:"description,omitempty"`
	Impact      ImpactLevel `json:"impact_level,omitempty"`
	Pending     *Action     `json:"pending_action,omitempty"`
}

// Duration returns the wait duration, defaulting to one second when the wire
// value is absent or non-positive.
func (a Action) Duration() time.Duration {
	if a.DurationSec <= 0 {
		return time.Second
	}
	return time.Duration(a.DurationSec * float64(time.Second))
}

// Terminal reports whether the action concludes the task.
func (a Action) Terminal() bool {
	return a.Kind == ActionFinish || a.Kind == ActionFail
}

// DeviceBound reports whether the action is dispatched to the device as an
// input event. Control actions (screenshot, finish, fail, confirm) are not.
func (a Action) DeviceBound() bool {
	switch a.Kind {
	case ActionClick, ActionDoubleClick, ActionRightClick,
		ActionTypeText, ActionKeyPress, ActionScroll, ActionDrag, ActionWait:
		return true
	default:
		return false
	}
}

var validDirections = map[string]bool{"up": true, "down": true, "left": true, "right": true}
var validButtons = map[string]bool{"": true, "left": true, "right": true, "middle": true}

// Validate checks that every field the action's kind requires is present and
// that all coordinates lie within the normalized bounds. A malformed action is
// rejected here, before it can ever reach the executor.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionClick, ActionDoubleClick, ActionRightClick:
		if !validButtons[a.Button] {
			return fmt.Errorf("%s: unknown mouse button %q", a.Kind, a.Button)
		}
		return checkPoint(a.Kind, a.X, a.Y)
	case ActionTypeText:
		if a.Text == "" {
			return fmt.Errorf("type_text: missing text")
		}
	case ActionKeyPress:
		if a.Key == "" {
			return fmt.Errorf("key_press: missing key")
		}
	case ActionScroll:
		if !validDirections[a.Direction] {
			return fmt.Errorf("scroll: invalid direction %q", a.Direction)
		}
		if a.Amount < 0 {
			return fmt.Errorf("scroll: negative amount %d", a.Amount)
		}
		return checkPoint(a.Kind, a.X, a.Y)
	case ActionDrag:
		if err := checkPoint(a.Kind, a.StartX, a.StartY); err != nil {
			return err
		}
		return checkPoint(a.Kind, a.EndX, a.EndY)
	case ActionWait:
		if a.DurationSec < 0 {
			return fmt.Errorf("wait: negative duration %v", a.DurationSec)
		}
	case ActionScreenshot, ActionFinish:
		// No required fields; finish messages are optional.
	case ActionFail:
		if a.Reason == "" {
			return fmt.Errorf("fail: missing reason")
		}
	case ActionConfirm:
		if a.Description == "" {
			return fmt.Errorf("confirm: missing description")
		}
		if a.Pending == nil {
			return fmt.Errorf("confirm: missing pending_action")
		}
		if a.Pending.Kind == ActionConfirm {
			return fmt.Errorf("confirm: pending_action cannot itself be a confirm")
		}
		if err := a.Pending.Validate(); err != nil {
			return fmt.Errorf("confirm: invalid pending_action: %w", err)
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Kind)
	}
	return nil
}

func checkPoint(kind ActionKind, x, y int) error {
	if x < 0 || x >= NormalizedWidth || y < 0 || y >= NormalizedHeight {
		return fmt.Errorf("%s: coordinates (%d,%d) outside normalized %dx%d space",
			kind, x, y, NormalizedWidth, NormalizedHeight)
	}
	return nil
}

// DecodeAction unmarshals and validates a single action from its wire form.
func DecodeAction(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, fmt.Errorf("failed to decode action: %w", err)
	}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// String renders a compact human-readable description, used in progress
// messages and logs.
func (a Action) String() string {
	switch a.Kind {
	case ActionClick, ActionDoubleClick, ActionRightClick:
		return fmt.Sprintf("%s(%d,%d)", a.Kind, a.X, a.Y)
	case ActionTypeText:
		return fmt.Sprintf("type_text(%d chars)", len(a.Text))
	case ActionKeyPress:
		return fmt.Sprintf("key_press(%s)", a.Key)
	case ActionScroll:
		return fmt.Sprintf("scroll(%s x%d at %d,%d)", a.Direction, a.Amount, a.X, a.Y)
	case ActionDrag:
		return fmt.Sprintf("drag(%d,%d -> %d,%d)", a.StartX, a.StartY, a.EndX, a.EndY)
	case ActionWait:
		return fmt.Sprintf("wait(%s)", a.Duration())
	case ActionConfirm:
		return fmt.Sprintf("confirm(%s)", a.Description)
	default:
		return string(a.Kind)
	}
}

package pipeline

import (
	"github.com/matzehuels/imgembed/pkg/dimension"
	"github.com/matzehuels/imgembed/pkg/media"
)

// SyntheticSize is the side length of the synthetic fallback payload.
const SyntheticSize = 100

// Payload is a resolved, embeddable image. Width and Height are final
// embed sizes in pixels at the configured DPI, already fitted to the page.
type Payload struct {
	Type     media.Type `json:"type"`
	Data     []byte     `json:"data"`
	Width    float64    `json:"width"`
	Height   float64    `json:"height"`
	Fallback bool       `json:"fallback,omitempty"`
}

// Size returns the payload dimensions.
func (p Payload) Size() dimension.Size {
	return dimension.Size{Width: p.Width, Height: p.Height}
}

// Synthetic returns the minimal payload used when even the placeholder
// cannot be resolved.
func Synthetic() Payload {
	return Payload{
		Type:     media.PNG,
		Data:     []byte{},
		Width:    SyntheticSize,
		Height:   SyntheticSize,
		Fallback: true,
	}
}

// Result is the outcome of one resolution stage: a payload or the reason
// the stage failed.
type Result struct {
	payload Payload
	err     error
}

// Ok wraps a successful payload.
func Ok(p Payload) Result { return Result{payload: p} }

// Err wraps a stage failure.
func Err(err error) Result { return Result{err: err} }

// IsOk reports whether the stage succeeded.
func (r Result) IsOk() bool { return r.err == nil }

// Unwrap returns the payload or the failure.
func (r Result) Unwrap() (Payload, error) { return r.payload, r.err }

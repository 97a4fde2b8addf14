//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// wp_presentation request opcodes.
const (
	presentationDestroy  wire.Opcode = 0 // destroy()
	presentationFeedback wire.Opcode = 1 // feedback(surface: object, callback: new_id)
)

// wp_presentation event opcodes.
const (
	presentationEventClockID wire.Opcode = 0 // clock_id(clk_id: uint)
)

// wp_presentation_feedback event opcodes.
const (
	presentationFeedbackEventSyncOutput wire.Opcode = 0 // sync_output(output: object)
	presentationFeedbackEventPresented  wire.Opcode = 1 // presented(tv_sec_hi, tv_sec_lo, tv_nsec, refresh, seq_hi, seq_lo, flags)
	presentationFeedbackEventDiscarded  wire.Opcode = 2 // discarded()
)

// clockMonotonic is CLOCK_MONOTONIC, the advertised presentation clock.
const clockMonotonic uint32 = 1

// Presentation is the wp_presentation global.
type Presentation struct {
	id wire.ObjectID
}

// Interface implements Global.
func (*Presentation) Interface() string { return IfacePresentation }

// Version implements Global.
func (*Presentation) Version() uint32 { return 1 }

// Bind implements Global.
func (*Presentation) Bind(c *Client, id wire.ObjectID, version uint32) error {
	bound := &Presentation{id: id}
	if err := c.AddObject(id, bound); err != nil {
		return err
	}

	b := wire.NewMessageBuilder()
	b.PutUint32(clockMonotonic)
	return c.Send(b.Build(id, presentationEventClockID))
}

// Handle dispatches wp_presentation requests.
func (p *Presentation) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case presentationDestroy:
		return c.RemoveObject(p.id)

	case presentationFeedback:
		surfaceID, err := d.Object()
		if err != nil {
			return err
		}
		id, err := d.Object()
		if err != nil {
			return err
		}

		if err := c.AddObject(id, &PresentationFeedback{id: id}); err != nil {
			return err
		}

		surface, err := Get[*Surface](c, surfaceID)
		if err != nil {
			return err
		}
		surface.pending.feedback = &id
		return nil

	default:
		return protocolErrorf(p.id, DisplayErrorInvalidMethod, "unknown op %d in wp_presentation", op)
	}
}

// PresentationFeedback resolves once, on scanout of the commit that carried
// it, then deletes itself.
type PresentationFeedback struct {
	id wire.ObjectID
}

// SyncOutput names the output the presentation happened on.
func (fb *PresentationFeedback) SyncOutput(c *Client, output wire.ObjectID) error {
	b := wire.NewMessageBuilder()
	b.PutObject(output)
	return c.Send(b.Build(fb.id, presentationFeedbackEventSyncOutput))
}

// Presented reports the scanout timestamp and retires the object. Flags pass
// through opaque.
func (fb *PresentationFeedback) Presented(c *Client, tvSec uint64, tvNsec, refreshNS uint32, seq uint64, flags uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(uint32(tvSec >> 32)).PutUint32(uint32(tvSec)).
		PutUint32(tvNsec).PutUint32(refreshNS).
		PutUint32(uint32(seq >> 32)).PutUint32(uint32(seq)).
		PutUint32(flags)
	if err := c.Send(b.Build(fb.id, presentationFeedbackEventPresented)); err != nil {
		return err
	}
	return c.RemoveObject(fb.id)
}

// Handle rejects all requests; the feedback interface has none.
func (fb *PresentationFeedback) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	return protocolErrorf(fb.id, DisplayErrorInvalidMethod, "unknown op %d in wp_presentation_feedback", op)
}

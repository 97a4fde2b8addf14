//go:build linux

// Package wl implements the server side of the Wayland protocol: per-client
// object tables, request dispatch, and every hosted interface from
// wl_display through the xdg-shell, dmabuf, presentation-time and
// layer-shell extensions.
package wl

import (
	"errors"
	"fmt"

	"github.com/tatami-wm/tatami/internal/wire"
)

// Interface names of the hosted globals and their bound versions.
const (
	IfaceCompositor        = "wl_compositor"
	IfaceShm               = "wl_shm"
	IfaceSeat              = "wl_seat"
	IfaceOutput            = "wl_output"
	IfaceSubcompositor     = "wl_subcompositor"
	IfaceDataDeviceManager = "wl_data_device_manager"
	IfaceXdgWmBase         = "xdg_wm_base"
	IfaceLinuxDmabuf       = "zwp_linux_dmabuf_v1"
	IfacePresentation      = "wp_presentation"
	IfaceLayerShell        = "zwlr_layer_shell_v1"
	IfaceXdgOutputManager  = "zxdg_output_manager_v1"
)

// wl_display error codes.
const (
	DisplayErrorInvalidObject  uint32 = 0
	DisplayErrorInvalidMethod  uint32 = 1
	DisplayErrorNoMemory       uint32 = 2
	DisplayErrorImplementation uint32 = 3
)

// Errors shared across the package.
var (
	ErrUnknownObject = errors.New("wl: unknown object")
	ErrObjectInUse   = errors.New("wl: object id already in use")
	ErrClientGone    = errors.New("wl: client disconnected")
)

// ProtocolError is a client fault that must be reported through
// wl_display.error before the client is dropped.
type ProtocolError struct {
	Object  wire.ObjectID
	Code    uint32
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wl: protocol error on object %d (code %d): %s", e.Object, e.Code, e.Message)
}

// protocolErrorf builds a ProtocolError for the given object.
func protocolErrorf(object wire.ObjectID, code uint32, format string, args ...any) error {
	return &ProtocolError{Object: object, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Object is a protocol resource living in a client's object table. Handle
// dispatches one decoded request; the decoder is positioned at the first
// argument.
type Object interface {
	Handle(c *Client, op wire.Opcode, d *wire.Decoder) error
}

// Global is a registry-advertised interface that clients bind by name.
type Global interface {
	Interface() string
	Version() uint32
	Bind(c *Client, id wire.ObjectID, version uint32) error
}

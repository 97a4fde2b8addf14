//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// wl_data_device_manager request opcodes.
const (
	dataDeviceManagerCreateDataSource wire.Opcode = 0 // create_data_source(id: new_id)
	dataDeviceManagerGetDataDevice    wire.Opcode = 1 // get_data_device(id: new_id, seat: object)
)

// wl_data_device request opcodes.
const (
	dataDeviceStartDrag    wire.Opcode = 0 // start_drag(source, origin, icon, serial)
	dataDeviceSetSelection wire.Opcode = 1 // set_selection(source: object, serial: uint)
	dataDeviceRelease      wire.Opcode = 2 // release()
)

// wl_data_source request opcodes.
const (
	dataSourceOffer      wire.Opcode = 0 // offer(mime_type: string)
	dataSourceDestroy    wire.Opcode = 1 // destroy()
	dataSourceSetActions wire.Opcode = 2 // set_actions(dnd_actions: uint)
)

// DataDeviceManager is the wl_data_device_manager global. Toolkits bind it
// unconditionally; selections and drags are accepted but never transferred.
type DataDeviceManager struct {
	id wire.ObjectID
}

// Interface implements Global.
func (*DataDeviceManager) Interface() string { return IfaceDataDeviceManager }

// Version implements Global.
func (*DataDeviceManager) Version() uint32 { return 3 }

// Bind implements Global.
func (*DataDeviceManager) Bind(c *Client, id wire.ObjectID, version uint32) error {
	return c.AddObject(id, &DataDeviceManager{id: id})
}

// Handle dispatches wl_data_device_manager requests.
func (m *DataDeviceManager) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case dataDeviceManagerCreateDataSource:
		id, err := d.Object()
		if err != nil {
			return err
		}
		return c.AddObject(id, &DataSource{id: id})

	case dataDeviceManagerGetDataDevice:
		id, err := d.Object()
		if err != nil {
			return err
		}
		if _, err := d.Object(); err != nil { // seat
			return err
		}
		return c.AddObject(id, &DataDevice{id: id})

	default:
		return protocolErrorf(m.id, DisplayErrorInvalidMethod, "unknown op %d in wl_data_device_manager", op)
	}
}

// DataDevice accepts selection and drag requests without acting on them.
type DataDevice struct {
	id wire.ObjectID
}

// Handle dispatches wl_data_device requests.
func (dd *DataDevice) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case dataDeviceStartDrag:
		for i := 0; i < 3; i++ {
			if _, err := d.Object(); err != nil {
				return err
			}
		}
		_, err := d.Uint32()
		return err

	case dataDeviceSetSelection:
		if _, err := d.Object(); err != nil {
			return err
		}
		_, err := d.Uint32()
		return err

	case dataDeviceRelease:
		return c.RemoveObject(dd.id)

	default:
		return protocolErrorf(dd.id, DisplayErrorInvalidMethod, "unknown op %d in wl_data_device", op)
	}
}

// DataSource records offered mime types; nothing ever reads them back.
type DataSource struct {
	id    wire.ObjectID
	mimes []string
}

// Handle dispatches wl_data_source requests.
func (ds *DataSource) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case dataSourceOffer:
		mime, err := d.String()
		if err != nil {
			return err
		}
		ds.mimes = append(ds.mimes, mime)
		return nil

	case dataSourceDestroy:
		return c.RemoveObject(ds.id)

	case dataSourceSetActions:
		_, err := d.Uint32()
		return err

	default:
		return protocolErrorf(ds.id, DisplayErrorInvalidMethod, "unknown op %d in wl_data_source", op)
	}
}

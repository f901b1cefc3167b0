package nm

import (
	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

// DeviceType values from the NetworkManager API (NMDeviceType)
type DeviceType uint32

const (
	DeviceTypeUnknown   DeviceType = 0
	DeviceTypeEthernet  DeviceType = 1
	DeviceTypeWifi      DeviceType = 2
	DeviceTypeBluetooth DeviceType = 5
	DeviceTypeModem     DeviceType = 8
	DeviceTypeTun       DeviceType = 16
	DeviceTypeWireguard DeviceType = 29
)

// DeviceState values from the NetworkManager API (NMDeviceState)
type DeviceState uint32

const (
	DeviceStateUnknown      DeviceState = 0
	DeviceStateUnavailable  DeviceState = 20
	DeviceStateDisconnected DeviceState = 30
	DeviceStatePrepare      DeviceState = 40
	DeviceStateSecondaries  DeviceState = 90
	DeviceStateActivated    DeviceState = 100
	DeviceStateDeactivating DeviceState = 110
	DeviceStateFailed       DeviceState = 120
)

// Connecting covers everything between PREPARE and SECONDARIES.
func (s DeviceState) Connecting() bool {
	return s >= DeviceStatePrepare && s <= DeviceStateSecondaries
}

func (s DeviceState) Activated() bool {
	return s == DeviceStateActivated
}

type Device struct {
	obj dbus.BusObject
}

func (d *Device) String() string {
	return string(d.obj.Path())
}

type DeviceProperties struct {
	Interface  string
	DeviceType DeviceType
	State      DeviceState
}

func (d *Device) GetAll() (*DeviceProperties, error) {
	call := d.obj.Call(propertiesInterface+".GetAll", 0, deviceInterface)
	if call.Err != nil {
		return nil, errors.Errorf("could not get all properties: %v", call.Err)
	}

	if len(call.Body) == 0 {
		return nil, errors.Errorf("empty reply for %v", d.obj.Path())
	}

	props, ok := call.Body[0].(map[string]dbus.Variant)
	if !ok {
		return nil, errors.Errorf("could not convert output")
	}

	device := DeviceProperties{}

	if val, ok := props["Interface"]; ok {
		if iface, ok := val.Value().(string); ok {
			device.Interface = iface
		} else {
			return nil, errors.Errorf("could not convert Interface to string: %v", val)
		}
	} else {
		return nil, errors.Errorf("mandatory property Interface was missing")
	}

	if val, ok := props["DeviceType"]; ok {
		if deviceType, ok := val.Value().(uint32); ok {
			device.DeviceType = DeviceType(deviceType)
		} else {
			return nil, errors.Errorf("could not convert DeviceType to uint32: %v", val)
		}
	} else {
		return nil, errors.Errorf("mandatory property DeviceType was missing")
	}

	if val, ok := props["State"]; ok {
		if state, ok := val.Value().(uint32); ok {
			device.State = DeviceState(state)
		}
	}

	return &device, nil
}

type ActiveConnection struct {
	nm  *NetworkManager
	obj dbus.BusObject
}

func (a *ActiveConnection) String() string {
	return string(a.obj.Path())
}

// Type returns the connection type, e.g. "802-11-wireless" or "gsm".
func (a *ActiveConnection) Type() (string, error) {
	v, err := a.obj.GetProperty(activeConnectionInterface + ".Type")
	if err != nil {
		return "", errors.Errorf("could not get connection type: %v", err)
	}

	connectionType, ok := v.Value().(string)
	if !ok {
		return "", errors.Errorf("could not convert connection type: %v", v)
	}

	return connectionType, nil
}

// Devices returns the devices carrying this connection.
func (a *ActiveConnection) Devices() ([]*Device, error) {
	v, err := a.obj.GetProperty(activeConnectionInterface + ".Devices")
	if err != nil {
		return nil, errors.Errorf("could not get connection devices: %v", err)
	}

	objectPaths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, errors.Errorf("could not convert connection devices: %v", v)
	}

	return a.nm.devices(objectPaths), nil
}

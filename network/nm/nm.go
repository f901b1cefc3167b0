package nm

import (
	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

const (
	busName    = "org.freedesktop.NetworkManager"
	objectPath = dbus.ObjectPath("/org/freedesktop/NetworkManager")

	managerInterface          = "org.freedesktop.NetworkManager"
	deviceInterface           = "org.freedesktop.NetworkManager.Device"
	activeConnectionInterface = "org.freedesktop.NetworkManager.Connection.Active"
	propertiesInterface       = "org.freedesktop.DBus.Properties"

	// rootPath is what NetworkManager reports when there is no primary connection
	rootPath = dbus.ObjectPath("/")
)

// NetworkManager is a thin client for the NetworkManager D-Bus API.
type NetworkManager struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func New() *NetworkManager {
	return &NetworkManager{}
}

func (n *NetworkManager) Start() error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return errors.Errorf("could not connect to system bus: %v", err)
	}

	var hasOwner bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, busName).Store(&hasOwner)
	if err != nil {
		_ = conn.Close()
		return errors.Errorf("could not look up %v: %v", busName, err)
	}

	if !hasOwner {
		_ = conn.Close()
		return errors.Errorf("%v is not running", busName)
	}

	n.conn = conn
	n.obj = conn.Object(busName, objectPath)

	return nil
}

func (n *NetworkManager) Stop() error {
	if n.conn == nil {
		return nil
	}

	err := n.conn.Close()
	if err != nil {
		return errors.Errorf("could not close system bus connection: %v", err)
	}

	n.conn = nil

	return nil
}

// PrimaryConnection returns the active connection that currently carries the
// default route, or nil if there is none.
func (n *NetworkManager) PrimaryConnection() (*ActiveConnection, error) {
	v, err := n.obj.GetProperty(managerInterface + ".PrimaryConnection")
	if err != nil {
		return nil, errors.Errorf("could not get primary connection: %v", err)
	}

	path, ok := v.Value().(dbus.ObjectPath)
	if !ok {
		return nil, errors.Errorf("could not convert primary connection: %v", v)
	}

	return n.activeConnection(path), nil
}

func (n *NetworkManager) activeConnection(path dbus.ObjectPath) *ActiveConnection {
	if path == "" || path == rootPath {
		return nil
	}

	return &ActiveConnection{
		nm:  n,
		obj: n.conn.Object(busName, path),
	}
}

func (n *NetworkManager) Devices() ([]*Device, error) {
	v, err := n.obj.GetProperty(managerInterface + ".Devices")
	if err != nil {
		return nil, errors.Errorf("could not get devices: %v", err)
	}

	objectPaths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, errors.Errorf("could not convert devices: %v", v)
	}

	return n.devices(objectPaths), nil
}

func (n *NetworkManager) devices(objectPaths []dbus.ObjectPath) []*Device {
	var devices []*Device

	for _, objectPath := range objectPaths {
		devices = append(devices, &Device{
			obj: n.conn.Object(busName, objectPath),
		})
	}

	return devices
}

// ConnectionInfo describes an active connection and the devices carrying it.
type ConnectionInfo struct {
	Type    string
	Devices []*DeviceProperties
}

// PrimaryConnectionInfo returns the type and devices of the primary
// connection, or nil if there is none.
func (n *NetworkManager) PrimaryConnectionInfo() (*ConnectionInfo, error) {
	primary, err := n.PrimaryConnection()
	if err != nil {
		return nil, err
	}

	if primary == nil {
		return nil, nil
	}

	connectionType, err := primary.Type()
	if err != nil {
		return nil, err
	}

	devices, err := primary.Devices()
	if err != nil {
		return nil, err
	}

	return &ConnectionInfo{
		Type:    connectionType,
		Devices: properties(devices),
	}, nil
}

// DeviceProperties returns the properties of all devices known to NetworkManager.
func (n *NetworkManager) DeviceProperties() ([]*DeviceProperties, error) {
	devices, err := n.Devices()
	if err != nil {
		return nil, err
	}

	return properties(devices), nil
}

// properties skips devices that vanished or could not be read.
func properties(devices []*Device) []*DeviceProperties {
	var all []*DeviceProperties

	for _, device := range devices {
		props, err := device.GetAll()
		if err != nil {
			continue
		}

		all = append(all, props)
	}

	return all
}

// managerChanges extracts the changed properties from a PropertiesChanged
// signal of the NetworkManager object.
func managerChanges(signal *dbus.Signal) (map[string]dbus.Variant, bool) {
	if signal == nil || signal.Name != propertiesInterface+".PropertiesChanged" || signal.Path != objectPath {
		return nil, false
	}

	if len(signal.Body) < 2 {
		return nil, false
	}

	if iface, ok := signal.Body[0].(string); !ok || iface != managerInterface {
		return nil, false
	}

	changed, ok := signal.Body[1].(map[string]dbus.Variant)
	return changed, ok
}

type PropertiesChangedClient struct {
	// Changes delivers the changed properties of the NetworkManager object
	Changes <-chan map[string]dbus.Variant
	Cancel  func()
}

// PropertiesChanged subscribes to property changes of the NetworkManager object.
func (n *NetworkManager) PropertiesChanged() (*PropertiesChangedClient, error) {
	changeChan := make(chan map[string]dbus.Variant)
	signalChan := make(chan *dbus.Signal, 8)
	done := make(chan struct{})

	matchOptions := []dbus.MatchOption{
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchArg(0, managerInterface),
	}

	call := n.conn.BusObject().AddMatchSignal(propertiesInterface, "PropertiesChanged", matchOptions...)
	if call.Err != nil {
		return nil, errors.Errorf("could not add signal: %v", call.Err)
	}

	n.conn.Signal(signalChan)

	go func() {
		defer close(changeChan)

		for {
			select {
			case signal, ok := <-signalChan:
				if !ok {
					return
				}

				changed, ok := managerChanges(signal)
				if !ok {
					continue
				}

				select {
				case changeChan <- changed:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	cancelled := false

	return &PropertiesChangedClient{
		Changes: changeChan,
		Cancel: func() {
			if cancelled {
				return
			}
			cancelled = true

			n.conn.RemoveSignal(signalChan)

			_ = n.conn.BusObject().RemoveMatchSignal(propertiesInterface, "PropertiesChanged", matchOptions...)

			close(done)
		},
	}, nil
}

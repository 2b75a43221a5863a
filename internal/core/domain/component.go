package domain

// Device groups components in Home Assistant. Components after the first
// one of a device only carry its Id and Name (see IdDevice).
type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

// Component is anything announced through Home Assistant discovery.
type Component interface {
	ComponentId() string
	ComponentType() string
	ComponentDevice() Device
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string
	DeviceClass       string
	EntityCategory    string
	EnabledByDefault  *bool
	Icon              string
	// DisplayPrecision is the number of decimals Home Assistant shows, nil for its default.
	DisplayPrecision *uint
}

func (s GenericSensor) ComponentId() string     { return s.Id }
func (s GenericSensor) ComponentType() string   { return s.SensorType }
func (s GenericSensor) ComponentDevice() Device { return s.Device }

// GenericSwitch is a command topic plus a retained on/off state topic.
type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

func (s GenericSwitch) ComponentId() string     { return s.Id }
func (s GenericSwitch) ComponentType() string   { return SENSOR_TYPE_SWITCH }
func (s GenericSwitch) ComponentDevice() Device { return s.Device }

var _ Component = GenericSensor{}
var _ Component = GenericSwitch{}

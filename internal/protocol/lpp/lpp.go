// Package lpp 解码 CayenneLPP 遥测数据（设备遥测响应中携带）。
package lpp

import (
	"fmt"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
)

// Type CayenneLPP 数据类型码
type Type uint8

const (
	TypeGenericSensor      Type = 100
	TypeLuminosity         Type = 101
	TypePresence           Type = 102
	TypeTemperature        Type = 103
	TypeRelativeHumidity   Type = 104
	TypeBarometricPressure Type = 115
	TypeVoltage            Type = 116
	TypeCurrent            Type = 117
	TypePercentage         Type = 120
	TypeConcentration      Type = 125
	TypePower              Type = 128
	TypeGPS                Type = 136
)

var typeNames = map[Type]string{
	TypeGenericSensor:      "generic_sensor",
	TypeLuminosity:         "luminosity",
	TypePresence:           "presence",
	TypeTemperature:        "temperature",
	TypeRelativeHumidity:   "relative_humidity",
	TypeBarometricPressure: "barometric_pressure",
	TypeVoltage:            "voltage",
	TypeCurrent:            "current",
	TypePercentage:         "percentage",
	TypeConcentration:      "concentration",
	TypePower:              "power",
	TypeGPS:                "gps",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// GPS 位置（纬度/经度单位为度，海拔单位为米）
type GPS struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Altitude  float64 `json:"altitude" yaml:"altitude"`
}

// Record 单条遥测记录。GPS 类型填充 GPS 字段，其余类型填充 Value。
type Record struct {
	Channel uint8   `json:"channel" yaml:"channel"`
	Type    Type    `json:"type" yaml:"type"`
	Value   float64 `json:"value" yaml:"value"`
	GPS     *GPS    `json:"gps,omitempty" yaml:"gps,omitempty"`
}

// Decode 顺序解码 channel|type|value 记录。
// channel=0 且 type=0 视为结束标记；遇到未知类型或数据截断时返回已解码部分。
func Decode(b []byte) []Record {
	r := buffer.NewReader(b)
	var out []Record
	for r.Remaining() >= 2 {
		ch := r.Uint8()
		typ := Type(r.Uint8())
		if ch == 0 && typ == 0 {
			break
		}
		rec := Record{Channel: ch, Type: typ}
		switch typ {
		case TypeGenericSensor:
			rec.Value = float64(r.Uint32BE())
		case TypeLuminosity:
			rec.Value = float64(r.Int16BE())
		case TypePresence, TypePercentage:
			rec.Value = float64(r.Uint8())
		case TypeTemperature:
			rec.Value = float64(r.Int16BE()) / 10
		case TypeRelativeHumidity:
			rec.Value = float64(r.Uint8()) / 2
		case TypeBarometricPressure:
			rec.Value = float64(r.Uint16BE()) / 10
		case TypeVoltage:
			rec.Value = float64(r.Int16BE()) / 100
		case TypeCurrent:
			rec.Value = float64(r.Int16BE()) / 1000
		case TypeConcentration, TypePower:
			rec.Value = float64(r.Uint16BE())
		case TypeGPS:
			rec.GPS = &GPS{
				Latitude:  float64(r.Int24BE()) / 10000,
				Longitude: float64(r.Int24BE()) / 10000,
				Altitude:  float64(r.Int24BE()) / 100,
			}
		default:
			return out
		}
		if r.Err() != nil {
			return out
		}
		out = append(out, rec)
	}
	return out
}

package transport

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaud 伴侣固件 USB 串口默认波特率
const DefaultBaud = 115200

// OpenSerial 打开 USB 串口（8N1）
func OpenSerial(path string, baud int) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	return port, nil
}

// ListSerialPorts 列出可用串口
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

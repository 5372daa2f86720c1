package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// serial framing: [slaveID, function, payload..., crcLo, crcHi]. Function
// codes double as the maintenance-command opcodes since this link has no
// separate coil address space the way Modbus does.
const (
	funcWritePosition uint8 = 0x01
	funcWriteVelocity uint8 = 0x02
	funcEnable        uint8 = 0x03
	funcDisable       uint8 = 0x04
	funcResetErrors   uint8 = 0x05
	funcFeedback      uint8 = 0x06 // unsolicited push from the controller
)

// SerialConfig configures a framed-packet serial-only controller link.
type SerialConfig struct {
	ConnectionConfig `yaml:",inline"`

	PortName string `yaml:"port_name"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
	SlaveID  byte   `yaml:"slave_id"`

	JointCount int `yaml:"joint_count"`
}

// SerialRobot is a Robot backend for controllers reachable only over a
// raw serial link (no Modbus register model), using a small
// length-implicit framed packet protocol with a CRC16 trailer.
type SerialRobot struct {
	*baseConnection
	config SerialConfig
	port   io.ReadWriteCloser
	mu     sync.Mutex
	stop   chan struct{}

	listener FeedbackListener
}

// NewSerialRobot constructs an unconnected SerialRobot.
func NewSerialRobot(config SerialConfig, listener FeedbackListener) *SerialRobot {
	return &SerialRobot{
		baseConnection: newBaseConnection(config.ConnectionConfig),
		config:         config,
		listener:       listener,
		stop:           make(chan struct{}),
	}
}

func (s *SerialRobot) parity() string {
	switch s.config.Parity {
	case "E", "e":
		return "E"
	case "O", "o":
		return "O"
	default:
		return "N"
	}
}

// Connect opens the serial port and starts the unsolicited-feedback
// listener goroutine.
func (s *SerialRobot) Connect(ctx context.Context) error {
	s.setStatus(StatusConnecting)

	port, err := serial.Open(&serial.Config{
		Address:  s.config.PortName,
		BaudRate: s.config.BaudRate,
		DataBits: s.config.DataBits,
		StopBits: s.config.StopBits,
		Parity:   s.parity(),
		Timeout:  s.config.Timeout,
	})
	if err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("open serial port %s: %w", s.config.PortName, err)
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	s.setStatus(StatusConnected)
	go s.listen()
	return nil
}

// Disconnect closes the port and stops the listener goroutine.
func (s *SerialRobot) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	close(s.stop)
	err := s.port.Close()
	s.port = nil
	s.setStatus(StatusDisconnected)
	if err != nil {
		return fmt.Errorf("close serial port: %w", err)
	}
	return nil
}

func (s *SerialRobot) writeFrame(function uint8, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return fmt.Errorf("serial port not open")
	}

	frame := make([]byte, 0, len(payload)+4)
	frame = append(frame, s.config.SlaveID, function)
	frame = append(frame, payload...)
	crc := crc16(frame)
	frame = append(frame, byte(crc&0xFF), byte(crc>>8))

	_, err := s.port.Write(frame)
	return err
}

// SendCommand writes whichever of jointPosition/jointVelocity are
// non-empty as separate framed packets.
func (s *SerialRobot) SendCommand(ctx context.Context, jointPosition, jointVelocity []float64) error {
	if len(jointPosition) > 0 {
		if err := s.writeFrame(funcWritePosition, radiansToBytes(jointPosition)); err != nil {
			return fmt.Errorf("write position command: %w", err)
		}
	}
	if len(jointVelocity) > 0 {
		if err := s.writeFrame(funcWriteVelocity, radiansToBytes(jointVelocity)); err != nil {
			return fmt.Errorf("write velocity command: %w", err)
		}
	}
	return nil
}

func (s *SerialRobot) SendEnable(ctx context.Context) error {
	return s.writeFrame(funcEnable, nil)
}

func (s *SerialRobot) SendDisable(ctx context.Context) error {
	return s.writeFrame(funcDisable, nil)
}

func (s *SerialRobot) SendResetErrors(ctx context.Context) error {
	return s.writeFrame(funcResetErrors, nil)
}

// listen reads inbound frames and dispatches feedback pushes to the
// listener. The controller is expected to push feedback unsolicited at
// its own rate, rather than being polled.
func (s *SerialRobot) listen() {
	buffer := make([]byte, 4096)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.mu.Lock()
		port := s.port
		s.mu.Unlock()
		if port == nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		n, err := port.Read(buffer)
		if err != nil {
			if err != io.EOF {
				s.setLastError(fmt.Errorf("serial read: %w", err))
			}
			continue
		}
		if n < 4 {
			continue
		}

		frame := buffer[:n]
		payload := frame[2 : n-2]
		gotCRC := uint16(frame[n-2]) | uint16(frame[n-1])<<8
		if crc16(frame[:n-2]) != gotCRC {
			continue
		}
		if frame[1] != funcFeedback {
			continue
		}

		n3 := len(payload) / 6
		if n3*6 != len(payload) { // 3 vectors * 2 bytes/value
			continue
		}
		now := time.Now().UnixMilli()
		s.listener.OnJointFeedback(
			bytesToRadians(payload[0:2*n3]),
			bytesToRadians(payload[2*n3:4*n3]),
			bytesToRadians(payload[4*n3:6*n3]),
			now,
		)
		s.listener.OnHealthPing(now)
	}
}

func radiansToBytes(values []float64) []byte {
	regs := radiansToRegisters(values)
	return registersToBytes(regs)
}

func bytesToRadians(b []byte) []float64 {
	return registersToRadians(bytesToRegisters(b))
}

// crc16 computes the Modbus-style CRC16 used to guard serial frames.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc >>= 1
				crc ^= 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

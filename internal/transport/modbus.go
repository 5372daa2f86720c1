package transport

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goburrow/modbus"
)

// countsPerRadian is the fixed-point scale used to pack a radian value
// into a signed 16-bit Modbus register.
const countsPerRadian = 10000.0

// ModbusConfig configures a Modbus-backed Robot. Type selects the
// underlying link: "tcp", "rtu", or "ascii".
type ModbusConfig struct {
	ConnectionConfig `yaml:",inline"`

	Type     string `yaml:"type"`
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
	SlaveID  byte   `yaml:"slave_id"`

	JointCount int `yaml:"joint_count"`
	// PositionCommandBase/VelocityCommandBase/PositionFeedbackBase/
	// VelocityFeedbackBase/EffortFeedbackBase are the first holding
	// register of each JointCount-wide block.
	PositionCommandBase  uint16 `yaml:"position_command_base"`
	VelocityCommandBase  uint16 `yaml:"velocity_command_base"`
	PositionFeedbackBase uint16 `yaml:"position_feedback_base"`
	VelocityFeedbackBase uint16 `yaml:"velocity_feedback_base"`
	EffortFeedbackBase   uint16 `yaml:"effort_feedback_base"`

	PollInterval time.Duration `yaml:"poll_interval"`
}

// ModbusRobot drives a robot controller exposed as a Modbus slave:
// joint position/velocity setpoints are written as holding registers
// and feedback is polled from a second bank on a background goroutine.
type ModbusRobot struct {
	*baseConnection
	config  ModbusConfig
	handler modbus.ClientHandler
	client  modbus.Client

	listener FeedbackListener
	stopPoll chan struct{}
}

// NewModbusRobot constructs an unconnected ModbusRobot. Connect must be
// called before use; feedback polling starts once connected.
func NewModbusRobot(config ModbusConfig, listener FeedbackListener) *ModbusRobot {
	return &ModbusRobot{
		baseConnection: newBaseConnection(config.ConnectionConfig),
		config:         config,
		listener:       listener,
		stopPoll:       make(chan struct{}),
	}
}

// Connect opens the underlying Modbus link and starts the feedback
// poller.
func (m *ModbusRobot) Connect(ctx context.Context) error {
	m.setStatus(StatusConnecting)

	var err error
	switch m.config.Type {
	case "tcp":
		err = m.connectTCP()
	case "rtu":
		err = m.connectRTU()
	case "ascii":
		err = m.connectASCII()
	default:
		m.setStatus(StatusError)
		return fmt.Errorf("unsupported modbus type %q", m.config.Type)
	}
	if err != nil {
		m.setStatus(StatusError)
		return fmt.Errorf("modbus connect: %w", err)
	}

	m.setStatus(StatusConnected)
	if m.config.PollInterval > 0 {
		go m.pollFeedback()
	}
	return nil
}

func (m *ModbusRobot) connectTCP() error {
	handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", m.config.Address, m.config.Port))
	handler.Timeout = m.config.Timeout
	handler.SlaveId = m.config.SlaveID
	if err := handler.Connect(); err != nil {
		return err
	}
	m.handler = handler
	m.client = modbus.NewClient(handler)
	return nil
}

func (m *ModbusRobot) connectRTU() error {
	handler := modbus.NewRTUClientHandler(m.config.Address)
	handler.BaudRate = m.config.BaudRate
	handler.DataBits = m.config.DataBits
	handler.StopBits = m.config.StopBits
	handler.Parity = m.config.Parity
	handler.SlaveId = m.config.SlaveID
	handler.Timeout = m.config.Timeout
	if err := handler.Connect(); err != nil {
		return err
	}
	m.handler = handler
	m.client = modbus.NewClient(handler)
	return nil
}

func (m *ModbusRobot) connectASCII() error {
	handler := modbus.NewASCIIClientHandler(m.config.Address)
	handler.BaudRate = m.config.BaudRate
	handler.DataBits = m.config.DataBits
	handler.StopBits = m.config.StopBits
	handler.Parity = m.config.Parity
	handler.SlaveId = m.config.SlaveID
	handler.Timeout = m.config.Timeout
	if err := handler.Connect(); err != nil {
		return err
	}
	m.handler = handler
	m.client = modbus.NewClient(handler)
	return nil
}

// Disconnect stops the feedback poller and drops the link.
func (m *ModbusRobot) Disconnect() error {
	close(m.stopPoll)
	m.handler = nil
	m.client = nil
	m.setStatus(StatusDisconnected)
	return nil
}

func radiansToRegisters(values []float64) []uint16 {
	out := make([]uint16, len(values))
	for i, v := range values {
		out[i] = uint16(int16(math.Round(v * countsPerRadian)))
	}
	return out
}

func registersToRadians(regs []uint16) []float64 {
	out := make([]float64, len(regs))
	for i, r := range regs {
		out[i] = float64(int16(r)) / countsPerRadian
	}
	return out
}

func registersToBytes(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[i*2] = byte(r >> 8)
		out[i*2+1] = byte(r & 0xff)
	}
	return out
}

func bytesToRegisters(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[i*2])<<8 | uint16(b[i*2+1])
	}
	return out
}

// SendCommand writes whichever of jointPosition/jointVelocity are
// non-empty to their register banks.
func (m *ModbusRobot) SendCommand(ctx context.Context, jointPosition, jointVelocity []float64) error {
	if len(jointPosition) > 0 {
		regs := radiansToRegisters(jointPosition)
		if err := m.retryWithTimeout(ctx, func() error {
			_, err := m.client.WriteMultipleRegisters(m.config.PositionCommandBase, uint16(len(regs)), registersToBytes(regs))
			return err
		}); err != nil {
			return fmt.Errorf("write position command: %w", err)
		}
	}
	if len(jointVelocity) > 0 {
		regs := radiansToRegisters(jointVelocity)
		if err := m.retryWithTimeout(ctx, func() error {
			_, err := m.client.WriteMultipleRegisters(m.config.VelocityCommandBase, uint16(len(regs)), registersToBytes(regs))
			return err
		}); err != nil {
			return fmt.Errorf("write velocity command: %w", err)
		}
	}
	return nil
}

// coilCommand is a one-bit maintenance command; all three maintenance
// operations share this shape, differing only by coil address.
func (m *ModbusRobot) coilCommand(ctx context.Context, coil uint16) error {
	return m.retryWithTimeout(ctx, func() error {
		_, err := m.client.WriteSingleCoil(coil, 0xFF00)
		return err
	})
}

func (m *ModbusRobot) SendDisable(ctx context.Context) error {
	return m.coilCommand(ctx, disableCoil)
}

func (m *ModbusRobot) SendEnable(ctx context.Context) error {
	return m.coilCommand(ctx, enableCoil)
}

func (m *ModbusRobot) SendResetErrors(ctx context.Context) error {
	return m.coilCommand(ctx, resetErrorsCoil)
}

const (
	enableCoil      uint16 = 0
	disableCoil     uint16 = 1
	resetErrorsCoil uint16 = 2
)

// pollFeedback runs on its own goroutine, reading the feedback register
// banks at config.PollInterval and pushing samples to the listener.
func (m *ModbusRobot) pollFeedback() {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	n := uint16(m.config.JointCount)

	for {
		select {
		case <-m.stopPoll:
			return
		case <-ticker.C:
			posBytes, err := m.client.ReadHoldingRegisters(m.config.PositionFeedbackBase, n)
			if err != nil {
				m.setLastError(err)
				continue
			}
			velBytes, err := m.client.ReadHoldingRegisters(m.config.VelocityFeedbackBase, n)
			if err != nil {
				m.setLastError(err)
				continue
			}
			effBytes, err := m.client.ReadHoldingRegisters(m.config.EffortFeedbackBase, n)
			if err != nil {
				m.setLastError(err)
				continue
			}

			now := time.Now().UnixMilli()
			m.listener.OnJointFeedback(
				registersToRadians(bytesToRegisters(posBytes)),
				registersToRadians(bytesToRegisters(velBytes)),
				registersToRadians(bytesToRegisters(effBytes)),
				now,
			)
			m.listener.OnHealthPing(now)
		}
	}
}

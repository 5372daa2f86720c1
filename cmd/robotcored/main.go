// Command robotcored runs the robot driver's control core: it loads
// configuration, brings up the chosen hardware transport, and drives
// the fixed-period control loop until asked to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"robotdriver/internal/config"
	"robotdriver/internal/ipc"
	"robotdriver/internal/logging"
	"robotdriver/internal/robotcore"
	"robotdriver/internal/transport"
)

// feedbackAdapter bridges a transport.Robot's asynchronous feedback
// push to robotcore's feedback store.
type feedbackAdapter struct {
	feedback *robotcore.RobotFeedback
}

func (a feedbackAdapter) OnJointFeedback(position, velocity, effort []float64, now int64) {
	a.feedback.UpdateJoint(position, velocity, effort, now)
}

func (a feedbackAdapter) OnHealthPing(now int64) {
	a.feedback.UpdateHealth(now)
}

// staticHealth reports every endpoint connected; a real RPC server
// would track per-connection liveness instead.
type staticHealth struct{}

func (staticHealth) IsConnected(string) bool { return true }

type robotDriverSystem struct {
	manager  *config.Manager
	feedback *robotcore.RobotFeedback
	robot    interface {
		transport.Robot
		Connect(context.Context) error
		Disconnect() error
	}
	controller *robotcore.Controller
	loop       *robotcore.ControlLoop
	rpcServer  *ipc.Server
	logger     *logging.Logger
}

func newRobotDriverSystem(configPath string) (*robotDriverSystem, error) {
	manager := config.NewManager(configPath)
	if err := manager.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	doc := manager.GetConfig()

	logger, err := logging.NewLogger(&doc.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	robotCfg, err := doc.ToRobotConfig()
	if err != nil {
		return nil, fmt.Errorf("build robot config: %w", err)
	}

	feedback := robotcore.NewRobotFeedback()
	listener := feedbackAdapter{feedback: feedback}

	robot, err := buildTransport(doc.Transport, listener)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	posWire := ipc.NewWire[robotcore.WireCommandPayload]()
	velWire := ipc.NewWire[robotcore.WireCommandPayload]()
	stateWire := ipc.NewStateWire()
	advancedWire := ipc.NewAdvancedStateWire()
	sensorPipe := ipc.NewSensorPipe()

	controller := robotcore.NewController(robotCfg, robotcore.SystemClock{}, robot, feedback, posWire, velWire, staticHealth{})
	controller.SetStateSinks(stateWire, advancedWire, sensorPipe)

	rpcConfig, err := parseListenAddress(doc.Listen)
	if err != nil {
		return nil, fmt.Errorf("parse listen address: %w", err)
	}
	rpcServer := ipc.NewServer(rpcConfig, controller, posWire, velWire, stateWire, advancedWire, sensorPipe)

	return &robotDriverSystem{
		manager:    manager,
		feedback:   feedback,
		robot:      robot,
		controller: controller,
		loop:       robotcore.NewControlLoop(controller),
		rpcServer:  rpcServer,
		logger:     logger,
	}, nil
}

func parseListenAddress(listen string) (ipc.RPCServerConfig, error) {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return ipc.RPCServerConfig{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ipc.RPCServerConfig{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return ipc.RPCServerConfig{Address: host, Port: port, BufferSize: 64}, nil
}

// connectableRobot is satisfied by every concrete backend; MockRobot
// has no link to open so it gets a no-op pair below.
type connectableRobot interface {
	transport.Robot
	Connect(context.Context) error
	Disconnect() error
}

func buildTransport(doc config.TransportDocument, listener transport.FeedbackListener) (connectableRobot, error) {
	switch doc.Backend {
	case "modbus":
		return transport.NewModbusRobot(doc.Modbus, listener), nil
	case "serial":
		return transport.NewSerialRobot(doc.Serial, listener), nil
	case "mock":
		return mockTransport{transport.NewMockRobot(listener)}, nil
	default:
		return nil, fmt.Errorf("unknown transport backend %q", doc.Backend)
	}
}

// mockTransport adapts MockRobot (always connected, nothing to dial)
// to the connectableRobot shape the other two backends satisfy
// natively.
type mockTransport struct {
	*transport.MockRobot
}

func (mockTransport) Connect(context.Context) error { return nil }
func (mockTransport) Disconnect() error              { return nil }

func (s *robotDriverSystem) Start(ctx context.Context) error {
	if err := s.robot.Connect(ctx); err != nil {
		return fmt.Errorf("connect transport: %w", err)
	}
	if err := s.rpcServer.Start(); err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}
	if err := s.manager.StartWatching(ctx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	go s.loop.Run()
	s.logger.Info("robot driver started", "joints", s.controller.GetRobotInfo().JointCount)
	return nil
}

func (s *robotDriverSystem) Stop() error {
	_ = s.manager.StopWatching()
	s.loop.Stop()
	if err := s.rpcServer.Stop(); err != nil {
		s.logger.Error("error stopping rpc server", "error", err)
	}
	if err := s.robot.Disconnect(); err != nil {
		s.logger.Error("error disconnecting transport", "error", err)
		return err
	}
	s.logger.Info("robot driver stopped")
	return nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	system, err := newRobotDriverSystem(*configPath)
	if err != nil {
		log.Fatalf("failed to initialize robot driver: %v", err)
	}

	ctx := context.Background()
	if err := system.Start(ctx); err != nil {
		log.Fatalf("failed to start robot driver: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := system.Stop(); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Println("shutdown timed out")
	}
}

package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"robotdriver/internal/logging"
	"robotdriver/internal/robotcore"
	"robotdriver/internal/trajectory"
)

// request is a client-to-server RPC call.
type request struct {
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// response answers a request, or carries an unsolicited broadcast when
// ID is empty.
type response struct {
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type rpcClient struct {
	id        string
	conn      net.Conn
	send      chan []byte
	active    bool
	closeOnce sync.Once
	closed    chan struct{}
}

// RPCServerConfig configures the TCP listener behind Server.
type RPCServerConfig struct {
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	BufferSize int    `yaml:"buffer_size"`
}

// Server exposes a Controller's public API and published state over a
// line-oriented JSON/TCP protocol: one request per line in, one
// response per line out, plus unsolicited state/sensor broadcasts.
// Grounded on the accept-loop/per-client send-goroutine shape of a
// TCP IPC server, generalized from message-type routing to RPC method
// dispatch.
type Server struct {
	config RPCServerConfig

	clientsLock sync.RWMutex
	clients     map[string]*rpcClient

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	controller *robotcore.Controller
	posWire    *Wire[robotcore.WireCommandPayload]
	velWire    *Wire[robotcore.WireCommandPayload]
	state      *StateWire
	advanced   *AdvancedStateWire
	sensors    *SensorPipe

	tasksLock sync.Mutex
	tasks     map[string]*robotcore.TrajectoryTask
	nextTask  int

	logger *logging.Logger
}

// NewServer wires an RPC server in front of controller, the command
// wires fillRobotCommand reads from, and the three publish sinks the
// control loop writes to every tick.
func NewServer(config RPCServerConfig, controller *robotcore.Controller, posWire, velWire *Wire[robotcore.WireCommandPayload], state *StateWire, advanced *AdvancedStateWire, sensors *SensorPipe) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:     config,
		clients:    make(map[string]*rpcClient),
		ctx:        ctx,
		cancel:     cancel,
		controller: controller,
		posWire:    posWire,
		velWire:    velWire,
		state:      state,
		advanced:   advanced,
		sensors:    sensors,
		tasks:      make(map[string]*robotcore.TrajectoryTask),
		logger:     logging.GetLogger("ipc_server"),
	}
}

// Start opens the listener and begins accepting clients and
// broadcasting sensor data.
func (s *Server) Start() error {
	address := net.JoinHostPort(s.config.Address, fmt.Sprintf("%d", s.config.Port))

	var err error
	s.listener, err = net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}

	s.logger.Info("rpc server started", "address", address)

	s.wg.Add(2)
	go s.acceptConnections()
	go s.broadcastSensorData()

	return nil
}

// Stop closes the listener and every client connection, and waits for
// all server goroutines to exit.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.clientsLock.Lock()
	for _, c := range s.clients {
		s.closeClient(c)
	}
	s.clients = make(map[string]*rpcClient)
	s.clientsLock.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) closeClient(c *rpcClient) {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			c.conn.Close()
		}
		select {
		case <-c.send:
		default:
			close(c.send)
		}
		c.active = false
	})
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept error", "error", err)
			continue
		}

		bufferSize := s.config.BufferSize
		if bufferSize <= 0 {
			bufferSize = 16
		}

		client := &rpcClient{
			id:     fmt.Sprintf("client-%d", time.Now().UnixNano()),
			conn:   conn,
			send:   make(chan []byte, bufferSize),
			active: true,
			closed: make(chan struct{}),
		}

		s.clientsLock.Lock()
		s.clients[client.id] = client
		s.clientsLock.Unlock()

		s.wg.Add(2)
		go s.handleClient(client)
		go s.sendToClient(client)
	}
}

func (s *Server) handleClient(c *rpcClient) {
	defer s.wg.Done()
	defer s.removeClient(c)

	decoder := json.NewDecoder(c.conn)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		var req request
		if err := decoder.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Error("decode error", "client_id", c.id, "error", err)
			}
			return
		}

		resp := s.dispatch(req)
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("marshal response error", "error", err)
			continue
		}
		s.deliver(c, data)
	}
}

func (s *Server) removeClient(c *rpcClient) {
	s.clientsLock.Lock()
	delete(s.clients, c.id)
	s.clientsLock.Unlock()
	s.closeClient(c)
}

func (s *Server) sendToClient(c *rpcClient) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-c.closed:
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				return
			}
			if _, err := c.conn.Write(append(data, '\n')); err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Error("send error", "client_id", c.id, "error", err)
				}
				return
			}
		}
	}
}

func (s *Server) deliver(c *rpcClient, data []byte) {
	select {
	case c.send <- data:
	default:
		s.logger.Warn("client send buffer full, dropping message", "client_id", c.id)
	}
}

func (s *Server) broadcast(data []byte) {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()
	for _, c := range s.clients {
		if c.active {
			s.deliver(c, data)
		}
	}
}

// broadcastSensorData fans every published sensor sample out to every
// connected client, piggybacking the latest state/advanced-state
// snapshot since those are overwrite-only wires with no change
// notification of their own.
func (s *Server) broadcastSensorData() {
	defer s.wg.Done()

	ch, unsubscribe := s.sensors.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-s.ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			state, _ := s.state.Latest()
			advanced, _ := s.advanced.Latest()
			result, err := json.Marshal(struct {
				Sensor        robotcore.RobotStateSensorData `json:"sensor"`
				State         robotcore.RobotState           `json:"state"`
				AdvancedState robotcore.AdvancedRobotState   `json:"advanced_state"`
			}{sample, state, advanced})
			if err != nil {
				continue
			}
			data, err := json.Marshal(response{Type: "sensor_update", OK: true, Result: result})
			if err != nil {
				continue
			}
			s.broadcast(data)
		}
	}
}

func (s *Server) dispatch(req request) response {
	result, err := s.call(req)
	if err != nil {
		return response{ID: req.ID, Type: req.Method, OK: false, Error: err.Error()}
	}
	var raw json.RawMessage
	if result != nil {
		raw, err = json.Marshal(result)
		if err != nil {
			return response{ID: req.ID, Type: req.Method, OK: false, Error: err.Error()}
		}
	}
	return response{ID: req.ID, Type: req.Method, OK: true, Result: raw}
}

func (s *Server) call(req request) (any, error) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	switch req.Method {
	case "set_position_command":
		return nil, s.setCommand(s.posWire, req.Payload)
	case "set_velocity_command":
		return nil, s.setCommand(s.velWire, req.Payload)
	case "set_command_mode":
		var p struct {
			Mode robotcore.CommandMode `json:"mode"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, s.controller.SetCommandMode(p.Mode)
	case "jog_joint":
		var p struct {
			TargetDegrees []float64 `json:"target_degrees"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, s.controller.JogJoint(ctx, p.TargetDegrees)
	case "execute_trajectory":
		return s.executeTrajectory(req.Payload)
	case "trajectory_next":
		return s.trajectoryNext(ctx, req.Payload)
	case "trajectory_abort":
		return nil, s.withTask(req.Payload, func(t *robotcore.TrajectoryTask) error {
			t.Abort()
			return nil
		})
	case "trajectory_close":
		return nil, s.withTask(req.Payload, func(t *robotcore.TrajectoryTask) error {
			t.Close()
			return nil
		})
	case "halt":
		s.controller.Halt()
		return nil, nil
	case "enable":
		return nil, s.controller.Enable(ctx)
	case "disable":
		return nil, s.controller.Disable(ctx)
	case "reset_errors":
		return nil, s.controller.ResetErrors(ctx)
	case "get_speed_ratio":
		return s.controller.GetSpeedRatio(), nil
	case "set_speed_ratio":
		var p struct {
			Ratio float64 `json:"ratio"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, s.controller.SetSpeedRatio(p.Ratio)
	case "get_robot_info":
		return s.controller.GetRobotInfo(), nil
	case "get_state":
		state, _ := s.state.Latest()
		return state, nil
	case "get_advanced_state":
		state, _ := s.advanced.Latest()
		return state, nil
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

func (s *Server) setCommand(wire *Wire[robotcore.WireCommandPayload], payload json.RawMessage) error {
	var p robotcore.WireCommandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	wire.Set(p)
	return nil
}

type trajectoryWaypoint struct {
	JointPositions []float64 `json:"joint_positions"`
	TimeFromStart  int64     `json:"time_from_start_ms"`
}

func (s *Server) executeTrajectory(payload json.RawMessage) (any, error) {
	var p struct {
		Waypoints       []trajectoryWaypoint `json:"waypoints"`
		SpeedRatio      float64              `json:"speed_ratio"`
		OwnerEndpointID string               `json:"owner_endpoint_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}

	waypoints := make([]robotcore.Waypoint, len(p.Waypoints))
	for i, w := range p.Waypoints {
		waypoints[i] = robotcore.Waypoint{
			JointPositions: w.JointPositions,
			TimeFromStart:  time.Duration(w.TimeFromStart) * time.Millisecond,
		}
	}

	interpolator := trajectory.NewLinearInterpolator()
	task, err := s.controller.ExecuteTrajectory(interpolator, waypoints, p.SpeedRatio, p.OwnerEndpointID)
	if err != nil {
		return nil, err
	}

	s.tasksLock.Lock()
	s.nextTask++
	taskID := fmt.Sprintf("task-%d", s.nextTask)
	s.tasks[taskID] = task
	s.tasksLock.Unlock()

	return struct {
		TaskID string `json:"task_id"`
	}{TaskID: taskID}, nil
}

func (s *Server) trajectoryNext(ctx context.Context, payload json.RawMessage) (any, error) {
	var p struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}

	s.tasksLock.Lock()
	task, ok := s.tasks[p.TaskID]
	s.tasksLock.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown task_id %q", p.TaskID)
	}

	return task.Next(ctx)
}

func (s *Server) withTask(payload json.RawMessage, fn func(*robotcore.TrajectoryTask) error) error {
	var p struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	s.tasksLock.Lock()
	task, ok := s.tasks[p.TaskID]
	s.tasksLock.Unlock()
	if !ok {
		return fmt.Errorf("unknown task_id %q", p.TaskID)
	}

	return fn(task)
}

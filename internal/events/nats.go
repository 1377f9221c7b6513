package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the first token of every subject published by NATSSink.
const SubjectPrefix = "agentcore"

// Subject returns agentcore.<taskId>.<kind>. Events without a task use "_".
func Subject(taskID string, kind Kind) string {
	if taskID == "" {
		taskID = "_"
	}
	taskID = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(taskID)
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, taskID, kind)
}

// NATSSink publishes events as JSON. Publishing is buffered by the client, so
// Emit does not wait on the network.
type NATSSink struct {
	nc *nats.Conn
}

func NewNATSSink(nc *nats.Conn) *NATSSink {
	return &NATSSink{nc: nc}
}

func (s *NATSSink) Emit(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("events: marshal failed", "kind", e.Kind, "err", err)
		return
	}
	if err := s.nc.Publish(Subject(e.TaskID, e.Kind), data); err != nil {
		slog.Warn("events: publish failed", "kind", e.Kind, "err", err)
	}
}

// ServerOptions configures StartEmbedded.
type ServerOptions struct {
	Host string
	Port int
	// InProcessOnly disables the network listener.
	InProcessOnly bool
}

// StartEmbedded runs a NATS server inside this process.
func StartEmbedded(opts ServerOptions) (*server.Server, error) {
	so := &server.Options{
		Host:       opts.Host,
		Port:       opts.Port,
		DontListen: opts.InProcessOnly,
		NoSigs:     true,
	}
	if so.Host == "" {
		so.Host = "127.0.0.1"
	}

	ns, err := server.NewServer(so)
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("nats server failed to start within timeout")
	}
	slog.Info("events: embedded nats ready", "url", ns.ClientURL(), "in_process", opts.InProcessOnly)
	return ns, nil
}

// ConnectInProcess connects to an embedded server without a network socket.
func ConnectInProcess(ns *server.Server) (*nats.Conn, error) {
	nc, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		return nil, fmt.Errorf("connecting in-process: %w", err)
	}
	return nc, nil
}

// Shutdown drains nc and stops ns. Either may be nil.
func Shutdown(nc *nats.Conn, ns *server.Server) error {
	if nc != nil {
		done := make(chan error, 1)
		go func() { done <- nc.Drain() }()
		select {
		case err := <-done:
			if err != nil {
				slog.Warn("events: nats drain failed, closing", "err", err)
				nc.Close()
			}
		case <-time.After(2 * time.Second):
			slog.Warn("events: nats drain timed out, closing")
			nc.Close()
		}
	}
	if ns != nil {
		ns.Shutdown()
		done := make(chan struct{})
		go func() {
			ns.WaitForShutdown()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			return errors.New("nats server shutdown timed out")
		}
	}
	return nil
}

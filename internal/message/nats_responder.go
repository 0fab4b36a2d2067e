package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/gateway"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
)

const (
	sourceNATS = "nats"

	ErrorCodeFormatNotValid = "command.format.not.valid"
	ErrorCodeParamsNotValid = "command.params.not.valid"
	ErrorCodeActionNotFound = "command.action.not.found"
	ErrorCodeRequestTimeout = "request.timeout"
	ErrorCodeInternal       = "command.internal.error"
)

// ResponseError 请求应答失败时的错误体
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ResponseError `json:"error"`
}

// NATSResponder 以请求应答方式执行运维命令，成功时应答结果集合
type NATSResponder struct {
	conn     *nats.Conn
	sub      *nats.Subscription
	subject  string
	queue    string
	executor CommandExecutor
	timeout  time.Duration
	logger   *logger.Logger
}

// NewNATSResponder 连接 NATS
func NewNATSResponder(cfg config.NATSConfig, executor CommandExecutor, log *logger.Logger) (*NATSResponder, error) {
	r := newResponder(cfg, executor, log)
	conn, err := nats.Connect(cfg.URL,
		nats.Name("central-system"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				r.logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			r.logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.conn = conn
	return r, nil
}

func newResponder(cfg config.NATSConfig, executor CommandExecutor, log *logger.Logger) *NATSResponder {
	if log == nil {
		log = logger.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &NATSResponder{
		subject:  cfg.CommandSubject,
		queue:    cfg.QueueGroup,
		executor: executor,
		timeout:  timeout,
		logger:   log.Component("nats-responder"),
	}
}

// Start 订阅命令主题，同一队列组内的实例分担请求
func (r *NATSResponder) Start() error {
	sub, err := r.conn.QueueSubscribe(r.subject, r.queue, func(m *nats.Msg) {
		if err := m.Respond(r.respond(m.Data)); err != nil {
			r.logger.Errorf("Failed to respond on %s: %v", m.Reply, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.subject, err)
	}
	r.sub = sub
	r.logger.Infof("Listening for commands on %s (queue %s)", r.subject, r.queue)
	return nil
}

// Close 排空订阅后关闭连接
func (r *NATSResponder) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Drain()
}

func (r *NATSResponder) respond(data []byte) []byte {
	var cmd gateway.OperatorCommand
	if err := json.Unmarshal(data, &cmd); err != nil || cmd.Command == "" {
		return errorReply(ErrorCodeFormatNotValid, "The command is not valid")
	}
	metrics.CommandsConsumed.WithLabelValues(sourceNATS).Inc()

	type outcome struct {
		agg *gateway.Aggregate
		err error
	}
	done := make(chan outcome, 1)
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	go func() {
		agg, err := r.executor.Execute(ctx, cmd)
		done <- outcome{agg, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return r.failure(cmd, out.err)
		}
		data, err := json.Marshal(out.agg)
		if err != nil {
			return errorReply(ErrorCodeInternal, err.Error())
		}
		return data
	case <-time.After(r.timeout):
		r.logger.Warnf("%s command timed out after %s", cmd.Command, r.timeout)
		return errorReply(ErrorCodeRequestTimeout, "The request timed out")
	}
}

func (r *NATSResponder) failure(cmd gateway.OperatorCommand, err error) []byte {
	switch {
	case errors.Is(err, gateway.ErrUnknownCommand):
		return errorReply(ErrorCodeActionNotFound, fmt.Sprintf("No such command %q", cmd.Command))
	case errors.Is(err, gateway.ErrInvalidParams):
		return errorReply(ErrorCodeParamsNotValid, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return errorReply(ErrorCodeRequestTimeout, "The request timed out")
	default:
		r.logger.Errorf("%s command failed: %v", cmd.Command, err)
		return errorReply(ErrorCodeInternal, err.Error())
	}
}

func errorReply(code, message string) []byte {
	data, _ := json.Marshal(errorResponse{Error: ResponseError{Code: code, Message: message}})
	return data
}

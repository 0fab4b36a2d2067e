package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/business/locallist"
	"github.com/charging-platform/central-system/internal/business/reservation"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
)

// OperatorCommand 运维命令，HTTP、Kafka、NATS 三种入口共用
type OperatorCommand struct {
	Command        string          `json:"command"`
	ChargePointIDs []string        `json:"chargePointIds"`
	Params         json.RawMessage `json:"params,omitempty"`
	CorrelationID  string          `json:"correlationId,omitempty"`
}

// ReservationOutcome 预约类命令的结果载荷
type ReservationOutcome struct {
	ReservationID int    `json:"reservationId"`
	Status        string `json:"status"`
}

type targetRunner func(ctx context.Context, chargePointID string) *Result

// CommandService 校验运维命令并对所有目标并发执行
type CommandService struct {
	dispatcher   *Dispatcher
	fanout       *FanOut
	localList    *locallist.Synchronizer
	reservations *reservation.Manager

	eventFactory *events.EventFactory
	eventChan    chan events.Event
	mu           sync.RWMutex
	stopped      bool

	logger *logger.Logger
	now    func() time.Time
}

// NewCommandService 创建命令服务
func NewCommandService(dispatcher *Dispatcher, fanout *FanOut, localList *locallist.Synchronizer, reservations *reservation.Manager, eventBuffer int, log *logger.Logger) *CommandService {
	if log == nil {
		log = logger.Default()
	}
	return &CommandService{
		dispatcher:   dispatcher,
		fanout:       fanout,
		localList:    localList,
		reservations: reservations,
		eventFactory: events.NewEventFactory(),
		eventChan:    make(chan events.Event, eventBuffer),
		logger:       log.Component("command-service"),
		now:          time.Now,
	}
}

// GetEventChannel 命令完成事件
func (s *CommandService) GetEventChannel() <-chan events.Event {
	return s.eventChan
}

// Stop 关闭事件通道
func (s *CommandService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.eventChan)
	}
}

// Execute 校验后对每个目标执行命令；参数错误时不发生任何网络调用
func (s *CommandService) Execute(ctx context.Context, cmd OperatorCommand) (*Aggregate, error) {
	if len(dedupe(cmd.ChargePointIDs)) == 0 {
		return nil, fmt.Errorf("%w: at least one charge point is required", ErrInvalidParams)
	}

	run, calls, err := s.prepare(cmd)
	if err != nil {
		return nil, err
	}

	agg := s.fanout.Run(cmd.Command, cmd.ChargePointIDs, calls, func(chargePointID string) *Result {
		return run(ctx, chargePointID)
	})

	counts := agg.Counts()
	s.logger.Infof("%s on %d charge points: %d succeeded, %d failed, %d timed out",
		cmd.Command, len(agg.Results()), counts[ResultSucceeded], counts[ResultFailed], counts[ResultTimeout])
	s.publish(cmd, agg)
	return agg, nil
}

// prepare 校验参数并返回单目标执行函数与其最多的顺序调用次数
func (s *CommandService) prepare(cmd OperatorCommand) (targetRunner, int, error) {
	var run targetRunner
	var err error
	switch ocpp16.Action(cmd.Command) {
	case ocpp16.ActionSendLocalList:
		// 差分、版本查询、完整重发
		run, err = s.prepareSendLocalList(cmd.Params)
		return run, 3, err
	case ocpp16.ActionReserveNow:
		run, err = s.prepareReserveNow(cmd.Params)
		return run, 1, err
	case ocpp16.ActionCancelReservation:
		run, err = s.prepareCancelReservation(cmd.Params)
		return run, 1, err
	}

	command, err := BuildCommand(cmd.Command, cmd.Params, s.now())
	if err != nil {
		return nil, 0, err
	}
	return func(ctx context.Context, chargePointID string) *Result {
		return s.dispatcher.Dispatch(ctx, chargePointID, command)
	}, 1, nil
}

func (s *CommandService) prepareSendLocalList(raw json.RawMessage) (targetRunner, error) {
	var p SendLocalListParams
	if err := DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.UpdateType == string(ocpp16.UpdateTypeFull) && (len(p.AddUpdate) > 0 || len(p.Delete) > 0) {
		return nil, fmt.Errorf("%w: full update takes no addUpdate or delete lists", ErrInvalidParams)
	}

	return func(ctx context.Context, chargePointID string) *Result {
		start := time.Now()
		res, err := s.localList.Sync(ctx, locallist.SyncRequest{
			ChargePointID: chargePointID,
			ListVersion:   p.ListVersion,
			UpdateType:    ocpp16.UpdateType(p.UpdateType),
			AddUpdate:     p.AddUpdate,
			Delete:        p.Delete,
		})
		result := s.businessResult(chargePointID, ocpp16.ActionSendLocalList, err, func() (string, interface{}) {
			outcome := string(res.Status)
			if res.Hash != nil {
				outcome = fmt.Sprintf("%s (hash: %s)", res.Status, *res.Hash)
			}
			if res.Retried {
				outcome = fmt.Sprintf("%s after full resend at version %d", outcome, res.ListVersion)
			}
			return outcome, res
		})
		s.dispatcher.Observe(result, time.Since(start))
		return result
	}, nil
}

func (s *CommandService) prepareReserveNow(raw json.RawMessage) (targetRunner, error) {
	var p ReserveNowParams
	if err := DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	expiry, err := validation.ParseOperatorTime(p.Expiry)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry: %v", ErrInvalidParams, err)
	}
	if !expiry.After(s.now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidParams)
	}
	var parent *string
	if p.ParentIdTag != "" {
		parent = &p.ParentIdTag
	}

	return func(ctx context.Context, chargePointID string) *Result {
		start := time.Now()
		id, status, err := s.reservations.Reserve(ctx, reservation.ReserveRequest{
			ChargePointID: chargePointID,
			ConnectorID:   p.ConnectorID,
			IdTag:         p.IdTag,
			ParentIdTag:   parent,
			Expiry:        expiry,
		})
		result := s.businessResult(chargePointID, ocpp16.ActionReserveNow, err, func() (string, interface{}) {
			return fmt.Sprintf("%s (reservation %d)", status, id), &ReservationOutcome{ReservationID: id, Status: string(status)}
		})
		s.dispatcher.Observe(result, time.Since(start))
		return result
	}, nil
}

func (s *CommandService) prepareCancelReservation(raw json.RawMessage) (targetRunner, error) {
	var p CancelReservationParams
	if err := DecodeParams(raw, &p); err != nil {
		return nil, err
	}

	return func(ctx context.Context, chargePointID string) *Result {
		start := time.Now()
		status, err := s.reservations.Cancel(ctx, chargePointID, p.ReservationID)
		result := s.businessResult(chargePointID, ocpp16.ActionCancelReservation, err, func() (string, interface{}) {
			return string(status), &ReservationOutcome{ReservationID: p.ReservationID, Status: string(status)}
		})
		s.dispatcher.Observe(result, time.Since(start))
		return result
	}, nil
}

func (s *CommandService) businessResult(chargePointID string, action ocpp16.Action, err error, success func() (string, interface{})) *Result {
	if err != nil {
		if errors.Is(err, locallist.ErrInvalidRequest) || errors.Is(err, reservation.ErrInvalidRequest) {
			err = fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return FailedResult(chargePointID, string(action), err)
	}
	outcome, response := success()
	return &Result{
		ChargePointID: chargePointID,
		Command:       string(action),
		Status:        ResultSucceeded,
		Outcome:       outcome,
		Response:      response,
	}
}

func (s *CommandService) publish(cmd OperatorCommand, agg *Aggregate) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}

	md := events.Metadata{Source: "command-service", ProtocolVersion: "1.6"}
	if cmd.CorrelationID != "" {
		id := cmd.CorrelationID
		md.CorrelationID = &id
	}

	for _, r := range agg.Results() {
		event := s.eventFactory.CreateCommandCompletedEvent(r.ChargePointID, events.CommandInfo{
			Command: r.Command,
			Status:  string(r.Status),
			Outcome: r.Outcome,
			Error:   r.Error,
		}, md)
		select {
		case s.eventChan <- event:
		default:
			s.logger.Warnf("Event channel full, dropping command result event for %s", r.ChargePointID)
		}
	}
}

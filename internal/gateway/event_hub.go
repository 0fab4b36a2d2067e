package gateway

import (
	"sync"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/logger"
)

// EventHub 汇聚各组件的事件通道到统一通道
type EventHub struct {
	out    chan events.Event
	wg     sync.WaitGroup
	once   sync.Once
	logger *logger.Logger
}

// NewEventHub 创建事件汇聚器
func NewEventHub(buffer int, log *logger.Logger) *EventHub {
	if log == nil {
		log = logger.Default()
	}
	return &EventHub{
		out:    make(chan events.Event, buffer),
		logger: log.Component("event-hub"),
	}
}

// Attach 转发来源通道的事件，直到来源关闭
func (h *EventHub) Attach(name string, source <-chan events.Event) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for event := range source {
			select {
			case h.out <- event:
			default:
				h.logger.Warnf("Event channel full, dropping %s event from %s", event.GetType(), name)
			}
		}
		h.logger.Debugf("Event source %s closed", name)
	}()
}

// Events 统一事件通道
func (h *EventHub) Events() <-chan events.Event {
	return h.out
}

// Close 等待所有来源关闭后关闭统一通道
func (h *EventHub) Close() {
	h.once.Do(func() {
		h.wg.Wait()
		close(h.out)
	})
}

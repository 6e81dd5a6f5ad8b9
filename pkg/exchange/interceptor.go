package exchange

import (
	"github.com/pion/logging"

	"github.com/backkem/coap/pkg/message"
)

// Interceptor observes every message crossing the reliability layer.
//
// Hooks run synchronously on the message path but are side-effect-only:
// they cannot rewrite a message or fabricate traffic. The one sanctioned
// intervention is loss synthesis, by calling Cancel on the message inside
// a send hook, which prevents the transmission without disturbing the
// exchange bookkeeping. Tests use this to simulate datagram loss
// deterministically.
type Interceptor interface {
	// SendRequest observes an outbound request.
	SendRequest(msg *message.Message)

	// SendResponse observes an outbound response, including notifications.
	SendResponse(msg *message.Message)

	// SendEmptyMessage observes an outbound ACK or RST.
	SendEmptyMessage(msg *message.Message)

	// ReceiveRequest observes an inbound request.
	ReceiveRequest(msg *message.Message)

	// ReceiveResponse observes an inbound response.
	ReceiveResponse(msg *message.Message)

	// ReceiveEmptyMessage observes an inbound ACK or RST.
	ReceiveEmptyMessage(msg *message.Message)
}

// BaseInterceptor is a no-op Interceptor intended for embedding, so
// implementations only override the hooks they care about.
type BaseInterceptor struct{}

func (BaseInterceptor) SendRequest(*message.Message)         {}
func (BaseInterceptor) SendResponse(*message.Message)        {}
func (BaseInterceptor) SendEmptyMessage(*message.Message)    {}
func (BaseInterceptor) ReceiveRequest(*message.Message)      {}
func (BaseInterceptor) ReceiveResponse(*message.Message)     {}
func (BaseInterceptor) ReceiveEmptyMessage(*message.Message) {}

// interceptorChain fans each hook out to every registered interceptor in
// registration order. A panicking interceptor is contained so it cannot
// take down the message path.
type interceptorChain struct {
	interceptors []Interceptor
	log          logging.LeveledLogger
}

func newInterceptorChain(interceptors []Interceptor, loggerFactory logging.LoggerFactory) *interceptorChain {
	c := &interceptorChain{interceptors: interceptors}
	if loggerFactory != nil {
		c.log = loggerFactory.NewLogger("interceptor")
	}
	return c
}

func (c *interceptorChain) each(msg *message.Message, hook func(Interceptor, *message.Message)) {
	for _, i := range c.interceptors {
		c.invoke(i, msg, hook)
	}
}

func (c *interceptorChain) invoke(i Interceptor, msg *message.Message, hook func(Interceptor, *message.Message)) {
	defer func() {
		if r := recover(); r != nil && c.log != nil {
			c.log.Errorf("interceptor panic: %v", r)
		}
	}()
	hook(i, msg)
}

func (c *interceptorChain) sendRequest(msg *message.Message) {
	c.each(msg, func(i Interceptor, m *message.Message) { i.SendRequest(m) })
}

func (c *interceptorChain) sendResponse(msg *message.Message) {
	c.each(msg, func(i Interceptor, m *message.Message) { i.SendResponse(m) })
}

func (c *interceptorChain) sendEmptyMessage(msg *message.Message) {
	c.each(msg, func(i Interceptor, m *message.Message) { i.SendEmptyMessage(m) })
}

func (c *interceptorChain) receiveRequest(msg *message.Message) {
	c.each(msg, func(i Interceptor, m *message.Message) { i.ReceiveRequest(m) })
}

func (c *interceptorChain) receiveResponse(msg *message.Message) {
	c.each(msg, func(i Interceptor, m *message.Message) { i.ReceiveResponse(m) })
}

func (c *interceptorChain) receiveEmptyMessage(msg *message.Message) {
	c.each(msg, func(i Interceptor, m *message.Message) { i.ReceiveEmptyMessage(m) })
}

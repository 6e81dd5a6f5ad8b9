package coap

import (
	"sync"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
)

// Resource serves GET requests for one path.
type Resource interface {
	// HandleRequest produces the response for a request. Returning nil
	// yields a 5.00 Internal Server Error.
	HandleRequest(req *message.Message, peer transport.PeerAddress) *message.Message

	// IsObservable reports whether clients may register as observers.
	IsObservable() bool
}

// NotifyFunc fans a state change out to every observer of a path. The
// endpoint binds it into observable resources when they are added.
type NotifyFunc func(path string, payload []byte, confirmable bool) int

// StaticResource is a non-observable resource with fixed content.
type StaticResource []byte

// HandleRequest returns the static content.
func (r StaticResource) HandleRequest(req *message.Message, _ transport.PeerAddress) *message.Message {
	return message.NewResponse(message.CodeContent, req.Token, []byte(r))
}

// IsObservable returns false.
func (StaticResource) IsObservable() bool {
	return false
}

// ObservedResource is an observable resource holding mutable content.
// Update changes the content and notifies every observer; each observer
// receives a notification stamped with its relation's next sequence
// number.
type ObservedResource struct {
	mu      sync.Mutex
	content []byte

	confirmable bool
	path        string
	notify      NotifyFunc
}

// NewObservedResource creates an observable resource with the given
// initial content. Notifications are Confirmable unless the endpoint is
// configured otherwise.
func NewObservedResource(content []byte) *ObservedResource {
	return &ObservedResource{
		content:     append([]byte(nil), content...),
		confirmable: true,
	}
}

// bind attaches the resource to its endpoint path and notification path.
func (r *ObservedResource) bind(path string, notify NotifyFunc, confirmable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
	r.notify = notify
	r.confirmable = confirmable
}

// Content returns a copy of the current content.
func (r *ObservedResource) Content() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.content...)
}

// Set replaces the content without notifying observers.
func (r *ObservedResource) Set(content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = append([]byte(nil), content...)
}

// Update replaces the content and notifies every observer.
func (r *ObservedResource) Update(content []byte) {
	r.Set(content)
	r.Changed()
}

// Changed notifies every observer with the current content.
func (r *ObservedResource) Changed() {
	r.mu.Lock()
	notify := r.notify
	path := r.path
	content := append([]byte(nil), r.content...)
	confirmable := r.confirmable
	r.mu.Unlock()

	if notify != nil {
		notify(path, content, confirmable)
	}
}

// HandleRequest returns the current content.
func (r *ObservedResource) HandleRequest(req *message.Message, _ transport.PeerAddress) *message.Message {
	return message.NewResponse(message.CodeContent, req.Token, r.Content())
}

// IsObservable returns true.
func (r *ObservedResource) IsObservable() bool {
	return true
}

package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates wraps a behavior and remembers the names of the stacked
// states, so that health checks and logs can report them.
type ActorWithStates struct {
	Behavior actor.Behavior
	names    []string
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

type namedState struct {
	name    string
	receive actor.ReceiveFunc
}

func (s namedState) Name() string {
	return s.name
}

func (s namedState) Receive(ctx actor.Context) {
	s.receive(ctx)
}

func NamedState(name string, receive actor.ReceiveFunc) ActorState {
	return namedState{name: name, receive: receive}
}

func NewActorWithStates() ActorWithStates {
	return ActorWithStates{Behavior: actor.NewBehavior()}
}

func (s *ActorWithStates) Become(state ActorState) {
	s.names = []string{state.Name()}
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.names = append(s.names, state.Name())
	s.Behavior.BecomeStacked(state.Receive)
}

func (s *ActorWithStates) UnbecomeStacked() {
	if len(s.names) > 1 {
		s.names = s.names[:len(s.names)-1]
	}
	s.Behavior.UnbecomeStacked()
}

func (s *ActorWithStates) StateName() string {
	if len(s.names) == 0 {
		return ""
	}
	return s.names[len(s.names)-1]
}

func (s *ActorWithStates) Receive(ctx actor.Context) {
	s.Behavior.Receive(ctx)
}

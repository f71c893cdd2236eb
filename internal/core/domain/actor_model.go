package domain

import (
	"mppsolar2mqtt/pkg/mppsolar"

	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER = "master"
	ACTOR_ID_DEVICE = "device"
	ACTOR_ID_POLL   = "poll"
	ACTOR_ID_MQTT   = "mqtt"
)

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

type ProbeDeviceRequest struct {
	ActorRequestMixIn
}

type ProbeDeviceResponse struct {
	ActorResponseMixIn
	Info *DeviceInfo
}

type QueryStatusRequest struct {
	ActorRequestMixIn
}

type QueryStatusResponse struct {
	ActorResponseMixIn
	Raw mppsolar.Response
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// SetupFailed is sent to the parent when the poll pipeline cannot start.
type SetupFailed struct {
	Error error
}

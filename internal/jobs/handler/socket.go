package handler

import (
	"context"
	"encoding/json"
	"errors"

	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/jobs/service"
	"shopfloor_backend/internal/realtime"
	"shopfloor_backend/platform/apperr"
	"shopfloor_backend/platform/logger"
)

var (
	errUnknownEvent   = apperr.Coded(apperr.KindBadRequest, "UNKNOWN_EVENT", "unknown event")
	errInvalidPayload = apperr.Coded(apperr.KindBadRequest, "INVALID_PAYLOAD", "event payload is invalid")
)

// PresencePayload lists the connected users.
type PresencePayload struct {
	Users []string `json:"users"`
}

// RegisteredPayload acknowledges user:register.
type RegisteredPayload struct {
	UserID string `json:"userId"`
	ConnID string `json:"connId"`
}

// SocketDispatcher routes inbound realtime events to the service.
type SocketDispatcher struct {
	svc      *service.Service
	registry *realtime.Registry
	log      *logger.Logger
}

var _ realtime.Dispatcher = (*SocketDispatcher)(nil)

// NewSocketDispatcher creates a dispatcher.
func NewSocketDispatcher(svc *service.Service, registry *realtime.Registry, log *logger.Logger) *SocketDispatcher {
	if log == nil {
		log = logger.Discard()
	}
	return &SocketDispatcher{svc: svc, registry: registry, log: log}
}

// Connected sends the current cache so a new client starts in sync.
func (d *SocketDispatcher) Connected(ctx context.Context, conn realtime.Conn) {
	d.reply(ctx, conn, realtime.EventJobSyncAll, d.svc.PullAll(ctx))
}

// Dispatch handles one inbound event. A returned error is reported to the
// sender only; the connection stays open.
func (d *SocketDispatcher) Dispatch(ctx context.Context, conn realtime.Conn, msg realtime.Message) error {
	switch msg.Event {
	case realtime.EventJobCreate:
		var job domain.Job
		if err := decode(msg.Data, &job); err != nil {
			return err
		}
		_, err := d.svc.PushJob(ctx, &job, conn.ID())
		return err

	case realtime.EventJobUpdateStatus:
		var payload realtime.UpdatePayload
		if err := decode(msg.Data, &payload); err != nil {
			return err
		}
		if payload.JobID == "" {
			return errInvalidPayload.Withf("jobId is required")
		}
		_, err := d.svc.PatchJob(ctx, payload.JobID, payload.Updates, conn.ID())
		if errors.Is(err, domain.ErrUnknownJob) {
			// Logged by the reconciler; the client's next full sync repairs it.
			return nil
		}
		return err

	case realtime.EventJobSyncAllFromAdmin:
		var jobs []*domain.Job
		if err := decode(msg.Data, &jobs); err != nil {
			return err
		}
		_, err := d.svc.PushAll(ctx, jobs, conn.ID())
		return err

	case realtime.EventJobRequestSync:
		d.reply(ctx, conn, realtime.EventJobSyncAll, d.svc.PullAll(ctx))
		return nil

	case realtime.EventUserRegister:
		var payload realtime.RegisterPayload
		if err := decode(msg.Data, &payload); err != nil {
			return err
		}
		if payload.UserID == "" {
			return errInvalidPayload.Withf("userId is required")
		}
		if err := d.registry.Bind(conn.ID(), payload.UserID); err != nil {
			return apperr.Wrap(apperr.KindConflict, err.Error(), err)
		}
		d.reply(ctx, conn, realtime.EventRegistered, RegisteredPayload{UserID: payload.UserID, ConnID: conn.ID()})
		d.broadcastPresence()
		return nil

	case realtime.EventPresenceList:
		d.reply(ctx, conn, realtime.EventPresence, PresencePayload{Users: d.registry.Users()})
		return nil

	default:
		return errUnknownEvent.Withf("unknown event %q", msg.Event)
	}
}

func (d *SocketDispatcher) reply(ctx context.Context, conn realtime.Conn, event string, payload interface{}) {
	msg, err := realtime.NewMessage(event, payload)
	if err != nil {
		d.log.WithContext(ctx).Error("failed to encode reply", "event", event, "error", err)
		return
	}
	if !conn.Send(msg) {
		d.log.WithContext(ctx).Warn("reply not delivered", "event", event, "connId", conn.ID())
	}
}

func (d *SocketDispatcher) broadcastPresence() {
	msg, err := realtime.NewMessage(realtime.EventPresence, PresencePayload{Users: d.registry.Users()})
	if err != nil {
		return
	}
	d.registry.Broadcast(msg, "")
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errInvalidPayload.Withf("payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errInvalidPayload.Withf("payload is invalid: %v", err)
	}
	return nil
}

package confdesk

import (
	"sync"

	"go.uber.org/zap"

	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
)

// AuthorizationStatus is the capture permission state for one media kind
type AuthorizationStatus int

const (
	NotDetermined AuthorizationStatus = iota
	Restricted
	Denied
	Authorized
)

func (s AuthorizationStatus) String() string {
	switch s {
	case NotDetermined:
		return "not_determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Authorizer is the system's capture permission subsystem
type Authorizer interface {
	Status(kind device.MediaKind) AuthorizationStatus

	// RequestAccess prompts for access and blocks until the user answers
	RequestAccess(kind device.MediaKind) AuthorizationStatus
}

// GrantedAuthorizer is used on platforms that don't gate capture devices
type GrantedAuthorizer struct{}

func (GrantedAuthorizer) Status(device.MediaKind) AuthorizationStatus {
	return Authorized
}

func (GrantedAuthorizer) RequestAccess(device.MediaKind) AuthorizationStatus {
	return Authorized
}

// AuthorizationHelper tracks audio and video capture authorization. Elevation
// requests run off the coordination queue and report back through it.
type AuthorizationHelper struct {
	logger     *zap.SugaredLogger
	authorizer Authorizer
	queue      Queue

	lock     sync.Mutex
	statuses map[device.MediaKind]AuthorizationStatus
}

func NewAuthorizationHelper(logger *zap.SugaredLogger, authorizer Authorizer, queue Queue) *AuthorizationHelper {
	ah := &AuthorizationHelper{
		logger:     logger.Named("authorization"),
		authorizer: authorizer,
		queue:      queue,
		statuses: map[device.MediaKind]AuthorizationStatus{
			device.Video: authorizer.Status(device.Video),
			device.Audio: authorizer.Status(device.Audio),
		},
	}

	ah.logger.Debugw("Created authorization helper instance",
		"video", ah.statuses[device.Video],
		"audio", ah.statuses[device.Audio])

	return ah
}

// Status returns the last known status for video or audio; other kinds are never authorized
func (ah *AuthorizationHelper) Status(kind device.MediaKind) AuthorizationStatus {
	ah.lock.Lock()
	defer ah.lock.Unlock()

	status, ok := ah.statuses[kind]
	if !ok {
		return Restricted
	}

	return status
}

// IsAuthorized is shorthand for Status(kind) == Authorized
func (ah *AuthorizationHelper) IsAuthorized(kind device.MediaKind) bool {
	return ah.Status(kind) == Authorized
}

// RequestIfNeeded asks for access when the status is still undetermined. done, if
// given, runs on the coordination queue with the new status once it is committed.
func (ah *AuthorizationHelper) RequestIfNeeded(kind device.MediaKind, done func(AuthorizationStatus)) {
	if ah.Status(kind) != NotDetermined {
		return
	}

	ah.logger.Infow("Requesting capture authorization", "kind", kind)

	go func() {
		status := ah.authorizer.RequestAccess(kind)

		ah.queue.Submit(func() {
			ah.lock.Lock()
			ah.statuses[kind] = status
			ah.lock.Unlock()

			ah.logger.Infow("Capture authorization changed", "kind", kind, "status", status)

			if done != nil {
				done(status)
			}
		})
	}()
}

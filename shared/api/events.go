package api

import "github.com/wavoo-crm/crmchat/shared/domain"

// Push events consumed by the client.
const (
	EventConnect          = "connect"
	EventDisconnect       = "disconnect"
	EventConnectError     = "connect_error"
	EventMessageNew       = "msg:new"
	EventMessageAck       = "msg:ack"
	EventMessageNotify    = "msg:notification"
	EventChannelStatus    = "wa:status"
	EventUserStatusChange = "user:status_change"
	EventUserIdle         = "user:idle"
	EventForceLogout      = "force_logout"
	EventNotification     = "new_notification"
)

// Events emitted by the client.
const (
	EventJoin          = "join"
	EventRequestStatus = "wa:get_status"
)

type JoinRequest struct {
	TenantID domain.ID `json:"tenantId"`
}

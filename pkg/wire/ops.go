package wire

// Control operations (LS_op).
const (
	OpAdd        = "add"
	OpDelete     = "delete"
	OpReconf     = "reconf"
	OpDestroy    = "destroy"
	OpRegister   = "register"
	OpActivate   = "activate"
	OpDeactivate = "deactivate"
	OpPNReconf   = "pn_reconf"
	OpResetBadge = "reset_badge"
)

// Connect and request causes (LS_cause).
const (
	CauseAPI           = "api"
	CauseWSError       = "ws.error"
	CauseHTTPError     = "http.error"
	CauseWSUnavailable = "ws.unavailable"
	CauseRecovery      = "recovery"
	CauseRecoveryLoop  = "recovery.loop"
	CauseRecoveryError = "recovery.error"
	CauseLoop          = "loop"
	CauseStalled       = "stalled"
	CauseRefreshToken  = "refresh.token"
	CauseRestoreToken  = "restore.token"
)

// Request parameter names.
const (
	ParamReqID            = "LS_reqId"
	ParamOp               = "LS_op"
	ParamCause            = "LS_cause"
	ParamAck              = "LS_ack"
	ParamCID              = "LS_cid"
	ParamSession          = "LS_session"
	ParamOldSession       = "LS_old_session"
	ParamSendSync         = "LS_send_sync"
	ParamKeepaliveMillis  = "LS_keepalive_millis"
	ParamAdapterSet       = "LS_adapter_set"
	ParamUser             = "LS_user"
	ParamPassword         = "LS_password"
	ParamPolling          = "LS_polling"
	ParamRecoveryFrom     = "LS_recovery_from"
	ParamCloseSocket      = "LS_close_socket"
	ParamSubID            = "LS_subId"
	ParamMode             = "LS_mode"
	ParamGroup            = "LS_group"
	ParamSchema           = "LS_schema"
	ParamDataAdapter      = "LS_data_adapter"
	ParamSnapshot         = "LS_snapshot"
	ParamMaxFrequency     = "LS_requested_max_frequency"
	ParamBufferSize       = "LS_requested_buffer_size"
	ParamPNType           = "PN_type"
	ParamPNAppID          = "PN_appId"
	ParamPNDeviceToken    = "PN_deviceToken"
	ParamPNNewDeviceToken = "PN_newDeviceToken"
	ParamPNDeviceID       = "PN_deviceId"
	ParamPNSubscriptionID = "PN_subscriptionId"
	ParamPNStatus         = "PN_subscriptionStatus"
	ParamPNFormat         = "PN_notificationFormat"
	ParamPNTrigger        = "PN_trigger"
	ParamPNCoalescing     = "PN_coalescing"
)

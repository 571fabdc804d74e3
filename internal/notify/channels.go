package notify

// Notification targets. TargetMain is the shell's primary window.
const (
	TargetMain = "main"
)

// Notification channels consumed by the UI surface.
const (
	ChannelAddAccountItem     = "add-account-item"
	ChannelAccountStatus      = "account-status"
	ChannelOpenAccountView    = "open-account-view"
	ChannelAccountInitLoading = "account-init-loading"
	ChannelHideViewTitle      = "hide-view-title-by-id"
	ChannelIsSandbox          = "is-sandbox"
	ChannelOperatorAlert      = "operator-alert"
	ChannelTaskUpdate         = "task-update"
	ChannelBlockingDialog     = "blocking-dialog"
	ChannelDismissDialog      = "dismiss-dialog"
)

// Account status values shown in the UI list.
const (
	StatusInitializing     = "initializing"
	StatusIdle             = "idle"
	StatusWorking          = "working"
	StatusIdleException    = "idle-exception"
	StatusWorkingException = "working-exception"
	StatusOffline          = "offline"
)

// StatusUpdate is the payload for ChannelAccountStatus.
type StatusUpdate struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

// OperatorAlert is the payload for ChannelOperatorAlert.
type OperatorAlert struct {
	AccountID string `json:"account_id"`
	RedID     string `json:"red_id,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Kind      string `json:"kind"`
	Message   string `json:"message,omitempty"`
}

// Dialog is the payload for ChannelBlockingDialog. Actions the operator can
// take are listed explicitly; a non-dismissible dialog offers no "close".
type Dialog struct {
	ID          string   `json:"id"`
	Reason      string   `json:"reason"`
	Message     string   `json:"message"`
	Actions     []string `json:"actions"`
	Dismissible bool     `json:"dismissible"`
	NetworkUp   *bool    `json:"network_up,omitempty"`
}

// Dialog actions.
const (
	ActionRestart     = "restart"
	ActionKeepWaiting = "keep-waiting"
)

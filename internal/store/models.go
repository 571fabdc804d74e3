package store

import "time"

// Account is one automated identity on the target platform. ID is the
// platform user id; RedID is the secondary id used to correlate control
// channel traffic and tasks.
type Account struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	RedID     string    `gorm:"uniqueIndex;not null" json:"red_id"`
	Nickname  string    `json:"nickname"`
	Avatar    string    `json:"avatar"`
	Status    string    `gorm:"not null;default:offline" json:"status"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SessionSnapshot holds the latest captured browsing state for one account.
// Cookie and storage payloads are Fernet-encrypted before they are written.
type SessionSnapshot struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID      string    `gorm:"uniqueIndex;not null" json:"account_id"`
	Cookies        string    `gorm:"type:text" json:"-"`
	LocalStorage   string    `gorm:"type:text" json:"-"`
	SessionStorage string    `gorm:"type:text" json:"-"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Task is an inbound unit of work correlated to an account. Tasks are
// persisted on ingestion so they survive process restarts and
// reconnection gaps; pending ones are replayed at startup.
type Task struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID      string     `gorm:"uniqueIndex;not null" json:"task_id"`
	AccountID   string     `gorm:"index" json:"account_id"`
	RedID       string     `gorm:"index" json:"red_id"`
	Command     string     `gorm:"not null" json:"command"`
	Payload     string     `gorm:"type:text" json:"payload"`
	Status      string     `gorm:"not null;default:pending" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Task status values.
const (
	TaskPending = "pending"
	TaskDone    = "done"
)

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

package models

import "time"

// AuditLog is an append-only record of an entitlement-changing action.
// ActorID is nil for system actions (webhooks, sweeps).
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"type:char(36);not null;uniqueIndex" json:"event_id"`
	TenantID  uint      `gorm:"not null;index:idx_audit_logs_tenant_created,priority:1" json:"tenant_id"`
	EventType string    `gorm:"type:varchar(64);not null;index" json:"event_type"`
	ActorID   *string   `gorm:"type:varchar(191);default:null" json:"actor_id,omitempty"`
	Metadata  string    `gorm:"type:text" json:"metadata"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_audit_logs_tenant_created,priority:2" json:"created_at"`
}

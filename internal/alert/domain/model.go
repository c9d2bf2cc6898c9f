// Package domain 告警领域模型
package domain

import (
	"time"

	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/money"
)

// AlertType 告警类别
type AlertType string

const (
	AlertCashShortage      AlertType = "cash_shortage"
	AlertLatePaymentRisk   AlertType = "late_payment_risk"
	AlertAnomaly           AlertType = "anomaly"
	AlertWorkingCapital    AlertType = "working_capital"
	AlertForecastDeviation AlertType = "forecast_deviation"
)

// Severity 严重程度
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status 告警状态。只允许向前迁移：
// active → acknowledged → resolved，或 active/acknowledged → dismissed。
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusDismissed    Status = "dismissed"
)

// RuleType 触发规则标识，用于同规则去重
type RuleType string

const (
	RuleDSOHigh              RuleType = "dso_high"
	RuleDPOLow               RuleType = "dpo_low"
	RuleCCCHigh              RuleType = "ccc_high"
	RuleOverdueReceivables   RuleType = "overdue_receivables"
	RuleForecastCashShortage RuleType = "cash_shortage"
)

// Alert 告警记录。内容创建后不变，只有状态经由调用方动作迁移。
type Alert struct {
	ID              string         `gorm:"column:id;primaryKey;type:char(36)"`
	CompanyID       string         `gorm:"column:company_id;index;type:char(36);not null"`
	AlertType       AlertType      `gorm:"column:alert_type;type:varchar(32);not null"`
	RuleType        RuleType       `gorm:"column:rule_type;type:varchar(32);not null;index"`
	Severity        Severity       `gorm:"column:severity;type:varchar(16);not null"`
	Status          Status         `gorm:"column:status;type:varchar(16);not null;index"`
	Title           string         `gorm:"column:title;type:varchar(255);not null"`
	Message         string         `gorm:"column:message;type:varchar(1024);not null"`
	PredictedDate   *time.Time     `gorm:"column:predicted_date"`
	PredictedAmount *money.Amount  `gorm:"column:predicted_amount"`
	ExpiresAt       *time.Time     `gorm:"column:expires_at"`
	Metadata        map[string]any `gorm:"column:metadata;serializer:json"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
}

// TableName 指定表名
func (Alert) TableName() string { return "alerts" }

// Acknowledge active → acknowledged
func (a *Alert) Acknowledge() error {
	if a.Status != StatusActive {
		return apperr.Conflict("alert is %s, cannot acknowledge", a.Status)
	}
	a.Status = StatusAcknowledged
	return nil
}

// Resolve active/acknowledged → resolved
func (a *Alert) Resolve() error {
	if a.Status != StatusActive && a.Status != StatusAcknowledged {
		return apperr.Conflict("alert is %s, cannot resolve", a.Status)
	}
	a.Status = StatusResolved
	return nil
}

// Dismiss active/acknowledged → dismissed
func (a *Alert) Dismiss() error {
	if a.Status != StatusActive && a.Status != StatusAcknowledged {
		return apperr.Conflict("alert is %s, cannot dismiss", a.Status)
	}
	a.Status = StatusDismissed
	return nil
}

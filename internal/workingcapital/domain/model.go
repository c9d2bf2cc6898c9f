// Package domain 营运资金领域模型
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cashflow/pkg/money"
)

// InvoiceType 发票类型
type InvoiceType string

const (
	InvoiceReceivable InvoiceType = "receivable"
	InvoicePayable    InvoiceType = "payable"
)

// InvoiceStatus 发票状态
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoiceVoid    InvoiceStatus = "void"
)

// Invoice 发票读模型。paid_date 非空当且仅当 status=paid，且不早于 issue_date。
type Invoice struct {
	ID        string        `gorm:"column:id;primaryKey;type:char(36)"`
	CompanyID string        `gorm:"column:company_id;index;type:char(36);not null"`
	Type      InvoiceType   `gorm:"column:type;type:varchar(16);not null"`
	Status    InvoiceStatus `gorm:"column:status;type:varchar(16);not null"`
	Amount    money.Amount  `gorm:"column:amount;not null"`
	IssueDate time.Time     `gorm:"column:issue_date;not null"`
	DueDate   time.Time     `gorm:"column:due_date;not null"`
	PaidDate  *time.Time    `gorm:"column:paid_date"`
}

// TableName 指定表名
func (Invoice) TableName() string { return "invoices" }

// WorkingCapitalMetric 某一计算日的营运资金指标快照。
// 同一公司同一日期重算即覆盖。
type WorkingCapitalMetric struct {
	ID            string           `gorm:"column:id;primaryKey;type:char(36)"`
	CompanyID     string           `gorm:"column:company_id;type:char(36);not null;uniqueIndex:uk_company_metric_date"`
	MetricDate    time.Time        `gorm:"column:metric_date;not null;uniqueIndex:uk_company_metric_date"`
	DSO           *decimal.Decimal `gorm:"column:dso;type:decimal(10,1)"`
	DPO           *decimal.Decimal `gorm:"column:dpo;type:decimal(10,1)"`
	CCC           *decimal.Decimal `gorm:"column:ccc;type:decimal(10,1)"`
	DSOSampleSize int              `gorm:"column:dso_sample_size;not null;default:0"`
	DPOSampleSize int              `gorm:"column:dpo_sample_size;not null;default:0"`
	ARBalance     money.Amount     `gorm:"column:ar_balance;not null;default:0"`
	APBalance     money.Amount     `gorm:"column:ap_balance;not null;default:0"`
	CashBalance   money.Amount     `gorm:"column:cash_balance;not null;default:0"`
	CreatedAt     time.Time        `gorm:"column:created_at"`
	UpdatedAt     time.Time        `gorm:"column:updated_at"`
}

// TableName 指定表名
func (WorkingCapitalMetric) TableName() string { return "working_capital_metrics" }

// Trend 指标相对上一期的走向
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Package domain 现金头寸领域模型
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cashflow/pkg/money"
)

// Granularity 重建序列的聚合粒度
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// Valid 判断粒度是否合法
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// BankAccount 银行账户读模型。余额只由同步流程（外部协作方）更新，
// 本模块只读取 current_balance 作为重建锚点。
type BankAccount struct {
	ID               string       `gorm:"column:id;primaryKey;type:char(36)"`
	CompanyID        string       `gorm:"column:company_id;index;type:char(36);not null"`
	Name             string       `gorm:"column:name;type:varchar(255)"`
	Currency         string       `gorm:"column:currency;type:char(3);not null"`
	CurrentBalance   money.Amount `gorm:"column:current_balance;not null"`
	AvailableBalance money.Amount `gorm:"column:available_balance;not null"`
	IsActive         bool         `gorm:"column:is_active;not null;default:true"`
	LastSyncedAt     *time.Time   `gorm:"column:last_synced_at"`
}

// TableName 指定表名
func (BankAccount) TableName() string { return "bank_accounts" }

// Transaction 银行交易读模型。正数为流入，负数为流出，金额为最小货币单位。
type Transaction struct {
	ID              string       `gorm:"column:id;primaryKey;type:char(36)"`
	CompanyID       string       `gorm:"column:company_id;index;type:char(36);not null"`
	BankAccountID   string       `gorm:"column:bank_account_id;index;type:char(36);not null"`
	Amount          money.Amount `gorm:"column:amount;not null"`
	TransactionDate time.Time    `gorm:"column:transaction_date;index;not null"`
	Category        string       `gorm:"column:category_primary;type:varchar(128)"`
	IsRecurring     bool         `gorm:"column:is_recurring;not null;default:false"`
}

// TableName 指定表名
func (Transaction) TableName() string { return "transactions" }

// BalancePoint 重建序列中的一个点：该日（或该期）期末余额与净变动
type BalancePoint struct {
	Date      time.Time    `json:"date"`
	Balance   money.Amount `json:"balance"`
	NetChange money.Amount `json:"netChange"`
}

// RunwayProjection 现金跑道测算结果
type RunwayProjection struct {
	CurrentBalance money.Amount
	AvgMonthlyBurn money.Amount
	// 尾随流出为零时 IsInfinite 为 true，此时 RunwayMonths/RunwayDays/ProjectedZeroDate 无意义
	IsInfinite        bool
	RunwayMonths      decimal.Decimal
	RunwayDays        int64
	ProjectedZeroDate *time.Time
}

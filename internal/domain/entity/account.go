// Package entity 定义领域实体
package entity

// AccessTier 账户访问等级
type AccessTier string

const (
	AccessTierDefault AccessTier = "default"
	AccessTierBeta    AccessTier = "beta"
	AccessTierPaid    AccessTier = "paid"
	AccessTierExpired AccessTier = "expired"
)

// Valid 是否为已知等级
func (t AccessTier) Valid() bool {
	switch t {
	case AccessTierDefault, AccessTierBeta, AccessTierPaid, AccessTierExpired:
		return true
	}
	return false
}

// Account 账本中的用户账户快照
// 余额只能由账本按增量修改，本服务从不直接写余额。
type Account struct {
	UserID                string     `json:"figma_user_id"`
	Username              string     `json:"figma_username,omitempty"`
	Credits               float64    `json:"credits"`
	AccessType            AccessTier `json:"access_type"`
	TotalCreditsPurchased float64    `json:"total_credits_purchased"`
	TotalCreditsUsed      float64    `json:"total_credits_used"`
}

// CanAfford 余额是否足以覆盖 amount
func (a *Account) CanAfford(amount float64) bool {
	return a != nil && a.Credits >= amount
}

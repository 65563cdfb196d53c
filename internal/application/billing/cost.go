// Package billing 实现计费协议：计费、扣费编排、支付入账、许可证兑换与管理员调整
package billing

import "credits-gateway/internal/domain/entity"

const tokensPerMillion = 1_000_000

// Pricing 每百万 token 单价
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost 费用明细（USD），不做任何舍入
type Cost struct {
	InputCost  float64 `json:"inputCost"`
	OutputCost float64 `json:"outputCost"`
	TotalCost  float64 `json:"totalCost"`
}

// Billable 总费用为正才需要扣费，0 表示无需扣费而非错误
func (c Cost) Billable() bool {
	return c.TotalCost > 0
}

// CostCalculator 纯函数式计费
type CostCalculator struct {
	pricing Pricing
}

func NewCostCalculator(p Pricing) *CostCalculator {
	return &CostCalculator{pricing: p}
}

// Calculate 任一计数缺失时 ok=false
func (c *CostCalculator) Calculate(usage entity.UsageRecord) (cost Cost, ok bool) {
	if !usage.Complete() {
		return Cost{}, false
	}
	cost.InputCost = float64(*usage.InputTokens) / tokensPerMillion * c.pricing.InputPerMillion
	cost.OutputCost = float64(*usage.OutputTokens) / tokensPerMillion * c.pricing.OutputPerMillion
	cost.TotalCost = cost.InputCost + cost.OutputCost
	return cost, true
}

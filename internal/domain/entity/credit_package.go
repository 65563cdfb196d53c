package entity

// CreditPackage 购买商品到积分的静态映射
type CreditPackage struct {
	Key      string  `json:"key"`
	Keyword  string  `json:"keyword"`
	Credits  int64   `json:"credits"`
	USDValue float64 `json:"usd_value"`
}

// LicenseKind 许可证分类
type LicenseKind string

const (
	LicenseKindDev     LicenseKind = "dev"
	LicenseKindStarter LicenseKind = "starter"
	LicenseKindPro     LicenseKind = "pro"
	LicenseKindPremium LicenseKind = "premium"
)

// LicenseGrant 许可证解析结果
type LicenseGrant struct {
	Kind    LicenseKind `json:"kind"`
	Credits int64       `json:"credits"`
}

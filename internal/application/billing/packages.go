package billing

import (
	"math"
	"strings"

	"credits-gateway/internal/domain/entity"
)

// FallbackPackageKey 未命中关键字表时按金额折算
const FallbackPackageKey = "usd_fallback"

// PackageCatalog 积分套餐表，按声明顺序匹配
type PackageCatalog struct {
	packages      []entity.CreditPackage
	creditsPerUSD float64
}

func NewPackageCatalog(packages []entity.CreditPackage, creditsPerUSD float64) *PackageCatalog {
	return &PackageCatalog{packages: packages, creditsPerUSD: creditsPerUSD}
}

// Resolve 商品名或规格名包含关键字（不区分大小写）即命中；
// 否则按 floor(totalUSD × creditsPerUSD) 折算。
func (c *PackageCatalog) Resolve(productName, variantName string, totalUSD float64) (pkg entity.CreditPackage, matched bool) {
	product := strings.ToLower(productName)
	variant := strings.ToLower(variantName)

	for _, p := range c.packages {
		kw := strings.ToLower(p.Keyword)
		if kw == "" {
			continue
		}
		if strings.Contains(product, kw) || strings.Contains(variant, kw) {
			return p, true
		}
	}

	return entity.CreditPackage{
		Key:      FallbackPackageKey,
		Credits:  int64(math.Floor(totalUSD * c.creditsPerUSD)),
		USDValue: totalUSD,
	}, false
}

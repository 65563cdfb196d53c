package billing

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"credits-gateway/internal/domain/entity"
)

// ErrUnparseableLicense 许可证无法识别，与 0 积分的合法结果区分
var ErrUnparseableLicense = errors.New("unparseable license key")

const (
	starterLicenseCredits = 100
	proLicenseCredits     = 500
	premiumLicenseCredits = 1000

	licenseVisibleSuffix = 4
)

var devLicensePattern = regexp.MustCompile(`^DEV-(\d+)$`)

// ParseLicense 静态分类，不访问外部服务
func ParseLicense(key string) (entity.LicenseGrant, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return entity.LicenseGrant{}, ErrUnparseableLicense
	}

	if m := devLicensePattern.FindStringSubmatch(key); m != nil {
		credits, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || credits <= 0 {
			return entity.LicenseGrant{}, ErrUnparseableLicense
		}
		return entity.LicenseGrant{Kind: entity.LicenseKindDev, Credits: credits}, nil
	}

	switch {
	case strings.Contains(key, "STARTER"):
		return entity.LicenseGrant{Kind: entity.LicenseKindStarter, Credits: starterLicenseCredits}, nil
	case strings.Contains(key, "PRO"):
		return entity.LicenseGrant{Kind: entity.LicenseKindPro, Credits: proLicenseCredits}, nil
	case strings.Contains(key, "PREMIUM"):
		return entity.LicenseGrant{Kind: entity.LicenseKindPremium, Credits: premiumLicenseCredits}, nil
	}
	return entity.LicenseGrant{}, ErrUnparseableLicense
}

// MaskLicense 只保留末 4 位
func MaskLicense(key string) string {
	key = strings.TrimSpace(key)
	runes := []rune(key)
	if len(runes) <= licenseVisibleSuffix {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-licenseVisibleSuffix) + string(runes[len(runes)-licenseVisibleSuffix:])
}

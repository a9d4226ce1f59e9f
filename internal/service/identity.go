package service

import "strings"

const (
	countryCode      = "62" // 印尼国家码
	trunkPrefix      = "0"  // 国内长途前缀
	subscriberPrefix = "8"  // 手机号裸前缀
	groupSuffix      = "@g.us"
)

// NormalizeContactID 把平台侧联系人标识归一化成稳定键。
// 纯函数：同样输入永远同样输出，不做 I/O，畸形输入返回尽力而为的结果而不是错误，
// 因为上游只需要一个稳定的键。
// 规则：去掉所有非数字字符；0 开头替换为国家码；8 开头补国家码；已带国家码原样保留。
// 群组 ID（@g.us）的数字串不是电话号码，只做非数字清洗。
func NormalizeContactID(raw string) string {
	isGroup := strings.Contains(raw, groupSuffix)

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" || isGroup {
		return digits
	}

	switch {
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, trunkPrefix):
		return countryCode + digits[len(trunkPrefix):]
	case strings.HasPrefix(digits, subscriberPrefix):
		return countryCode + digits
	default:
		return digits
	}
}

package progress

import "strings"

// Category 是按用户统计的固定训练分类
type Category string

const (
	CategoryNone Category = ""
	CategoryCore Category = "core"
	CategoryPush Category = "push"
	CategoryPull Category = "pull"
	CategoryLegs Category = "legs"
)

// Categories 按展示顺序列出全部分类
var Categories = []Category{CategoryCore, CategoryPush, CategoryPull, CategoryLegs}

func (c Category) IsValid() bool {
	switch c {
	case CategoryCore, CategoryPush, CategoryPull, CategoryLegs:
		return true
	default:
		return false
	}
}

// ParseCategory 空字符串表示无分类，其余必须是已知分类
func ParseCategory(input string) (Category, error) {
	s := strings.TrimSpace(strings.ToLower(input))
	if s == "" {
		return CategoryNone, nil
	}
	c := Category(s)
	if !c.IsValid() {
		return CategoryNone, validationError("unknown category %q", input)
	}
	return c, nil
}

package progress

const (
	// LevelXPStep 总等级曲线的步长，见 XPForLevel
	LevelXPStep = 100

	// CategoryXPStep 分类等级曲线的步长
	CategoryXPStep = 50

	maxLevelSearch = 1_000_000
)

// XPForLevel 返回达到 level 所需的累计 XP。1 级为 0，
// 之后每升一级比上一级多需要 LevelXPStep（100、200、300 依次递增）
func XPForLevel(level int) int {
	return thresholdFor(level, LevelXPStep)
}

// LevelForXP 返回门槛不超过 totalXP 的最高等级，最低为 1
func LevelForXP(totalXP int) int {
	return levelFor(totalXP, LevelXPStep)
}

// CategoryXPForLevel 分类曲线版本的 XPForLevel
func CategoryXPForLevel(level int) int {
	return thresholdFor(level, CategoryXPStep)
}

// CategoryLevelForXP 分类曲线版本的 LevelForXP
func CategoryLevelForXP(xp int) int {
	return levelFor(xp, CategoryXPStep)
}

func thresholdFor(level, step int) int {
	if level <= 1 {
		return 0
	}
	return step * level * (level - 1) / 2
}

func levelFor(xp, step int) int {
	if xp <= 0 {
		return 1
	}

	// 先倍增找上界，再二分
	low := 1
	high := 2
	for thresholdFor(high, step) <= xp {
		low = high
		high *= 2
		if high > maxLevelSearch {
			break
		}
	}

	for low+1 < high {
		mid := low + (high-low)/2
		if thresholdFor(mid, step) <= xp {
			low = mid
		} else {
			high = mid
		}
	}
	return low
}

package model

// MaxLevel caps progression.
const MaxLevel = 50

// XPForLevel returns the total experience required to reach level.
// Quadratic curve: cheap early levels, steepening later.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	n := int64(level - 1)
	return n * n * 100
}

// LevelForXP returns the level a total experience amount corresponds to.
func LevelForXP(xp int64) int {
	level := 1
	for level < MaxLevel && xp >= XPForLevel(level+1) {
		level++
	}
	return level
}

// Package relationship drives the per-character affinity score and the
// gated, strictly forward level state machine.
package relationship

// Level ids, ordered from distant to devoted. Transitions only ever move
// one step to the right.
const (
	LevelStranger     = "stranger"
	LevelAcquaintance = "acquaintance"
	LevelFriend       = "friend"
	LevelClose        = "close"
	LevelAmbiguous    = "ambiguous"
	LevelCrush        = "crush"
	LevelLover        = "lover"
	LevelDevoted      = "devoted"
)

// Levels is the canonical forward order.
var Levels = []string{
	LevelStranger,
	LevelAcquaintance,
	LevelFriend,
	LevelClose,
	LevelAmbiguous,
	LevelCrush,
	LevelLover,
	LevelDevoted,
}

// Gate holds the quantitative requirements to attempt a level. Both must
// hold simultaneously before the qualitative evaluation is even tried.
type Gate struct {
	MinScore int
	MinDays  int // days since first message
}

// Gates are the published per-level requirements.
var Gates = map[string]Gate{
	LevelAcquaintance: {MinScore: 30, MinDays: 1},
	LevelFriend:       {MinScore: 80, MinDays: 3},
	LevelClose:        {MinScore: 150, MinDays: 7},
	LevelAmbiguous:    {MinScore: 250, MinDays: 14},
	LevelCrush:        {MinScore: 400, MinDays: 21},
	LevelLover:        {MinScore: 600, MinDays: 30},
	LevelDevoted:      {MinScore: 900, MinDays: 60},
}

var labels = map[string]string{
	LevelStranger:     "陌生人",
	LevelAcquaintance: "初识",
	LevelFriend:       "朋友",
	LevelClose:        "亲近",
	LevelAmbiguous:    "暧昧",
	LevelCrush:        "心动",
	LevelLover:        "恋人",
	LevelDevoted:      "挚爱",
}

// Label returns the human-readable stage name.
func Label(level string) string {
	if label, ok := labels[level]; ok {
		return label
	}
	return labels[LevelStranger]
}

// Index returns a level's position in the forward order, or -1.
func Index(level string) int {
	for i, l := range Levels {
		if l == level {
			return i
		}
	}
	return -1
}

// Next returns the level one step forward, or false at the top.
func Next(level string) (string, bool) {
	idx := Index(level)
	if idx < 0 || idx+1 >= len(Levels) {
		return "", false
	}
	return Levels[idx+1], true
}

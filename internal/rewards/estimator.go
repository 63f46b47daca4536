package rewards

type Rewards struct {
	CoinsEarned int `json:"coins_earned"`
	ExpEarned   int `json:"exp_earned"`
	BonusCoins  int `json:"bonus_coins"`
	BonusExp    int `json:"bonus_exp"`
}

func (r Rewards) Total() (coins, exp int) {
	return r.CoinsEarned + r.BonusCoins, r.ExpEarned + r.BonusExp
}

const (
	coinsPerMinute = 2
	expPerPage     = 5
)

// bonus steps are cumulative so the estimate stays monotonic
var durationBonuses = []struct {
	minutes int64
	coins   int
}{
	{30, 10},
	{60, 25},
	{120, 50},
}

var pageBonuses = []struct {
	pages int
	exp   int
}{
	{20, 15},
	{50, 35},
	{100, 80},
}

// Estimate approximates the rewards for a completed session while the
// authority is unreachable. The server's calculation supersedes this on sync;
// the estimate only has to be deterministic and non-decreasing in both inputs.
func Estimate(durationSeconds int64, pagesRead int) Rewards {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	if pagesRead < 0 {
		pagesRead = 0
	}

	minutes := durationSeconds / 60
	r := Rewards{
		CoinsEarned: int(minutes) * coinsPerMinute,
		ExpEarned:   pagesRead * expPerPage,
	}
	for _, b := range durationBonuses {
		if minutes >= b.minutes {
			r.BonusCoins += b.coins
		}
	}
	for _, b := range pageBonuses {
		if pagesRead >= b.pages {
			r.BonusExp += b.exp
		}
	}
	return r
}

package gamification

import (
	"time"

	"github.com/gosimple/slug"
)

// Theme partitions the daily quest catalog.
type Theme string

const (
	ThemeTechnique   Theme = "technique"
	ThemeCreative    Theme = "creative"
	ThemeSocial      Theme = "social"
	ThemeEndurance   Theme = "endurance"
	ThemeProgression Theme = "progression"
	ThemeExploration Theme = "exploration"
	ThemeMindfulness Theme = "mindfulness"
	ThemeStrength    Theme = "strength"
)

// Themes lists every theme in a stable order.
var Themes = []Theme{
	ThemeTechnique, ThemeCreative, ThemeSocial, ThemeEndurance,
	ThemeProgression, ThemeExploration, ThemeMindfulness, ThemeStrength,
}

const (
	MaxActiveDailyQuests = 3
	MaxCompletionsPerDay = 3
	DailyQuestLifetime   = 24 * time.Hour
	WeeklyQuestCooldown  = 7 * 24 * time.Hour
)

// QuestTemplate is a hand-authored quest.
type QuestTemplate struct {
	Theme       Theme
	Title       string
	Description string
	XPReward    int64
	MaxProgress int
	// ExpiresIn is only used by weekly templates; dailies always last DailyQuestLifetime.
	ExpiresIn time.Duration
}

// Key is the de-duplication key of the template.
func (t QuestTemplate) Key() string {
	return TemplateKey(t.Title)
}

// TemplateKey slugs a quest title so catalog and generated quests share one key space.
func TemplateKey(title string) string {
	return slug.Make(title)
}

// QuestCatalog holds the daily templates by theme and the weekly templates.
type QuestCatalog struct {
	daily  map[Theme][]QuestTemplate
	weekly []QuestTemplate
}

func NewQuestCatalog() *QuestCatalog {
	c := &QuestCatalog{daily: make(map[Theme][]QuestTemplate)}
	for _, t := range buildDailyTemplates() {
		c.daily[t.Theme] = append(c.daily[t.Theme], t)
	}
	c.weekly = buildWeeklyTemplates()
	return c
}

// Daily returns the templates for theme.
func (c *QuestCatalog) Daily(theme Theme) []QuestTemplate {
	out := make([]QuestTemplate, len(c.daily[theme]))
	copy(out, c.daily[theme])
	return out
}

func (c *QuestCatalog) Weekly() []QuestTemplate {
	out := make([]QuestTemplate, len(c.weekly))
	copy(out, c.weekly)
	return out
}

// FallbackDailyQuest is used when the catalog is exhausted and advice generation fails.
func FallbackDailyQuest() QuestTemplate {
	return QuestTemplate{
		Theme:       ThemeMindfulness,
		Title:       "Mindful Mileage",
		Description: "Climb five problems well below your limit, focusing on silent feet and steady breathing.",
		XPReward:    30,
		MaxProgress: 1,
	}
}

func buildDailyTemplates() []QuestTemplate {
	return []QuestTemplate{
		{Theme: ThemeTechnique, Title: "Silent Feet", Description: "Climb 5 problems placing every foot without a sound.", XPReward: 40, MaxProgress: 5},
		{Theme: ThemeTechnique, Title: "Flag It", Description: "Use a flag on 3 different problems.", XPReward: 35, MaxProgress: 3},
		{Theme: ThemeTechnique, Title: "Heel Hook Hunt", Description: "Find and send 2 problems that need a heel hook.", XPReward: 45, MaxProgress: 2},

		{Theme: ThemeCreative, Title: "Eliminate Artist", Description: "Invent an eliminate on a warm-up problem and send it.", XPReward: 40, MaxProgress: 1},
		{Theme: ThemeCreative, Title: "Reverse Route", Description: "Downclimb 3 problems you have already sent.", XPReward: 35, MaxProgress: 3},
		{Theme: ThemeCreative, Title: "Set for a Friend", Description: "Set a problem on the spray wall for someone else.", XPReward: 40, MaxProgress: 1},

		{Theme: ThemeSocial, Title: "Beta Exchange", Description: "Share beta on a problem with another climber.", XPReward: 30, MaxProgress: 1},
		{Theme: ThemeSocial, Title: "Spot Duty", Description: "Spot a friend through 3 attempts.", XPReward: 30, MaxProgress: 3},
		{Theme: ThemeSocial, Title: "Session Partner", Description: "Climb a full session with a partner.", XPReward: 35, MaxProgress: 1},

		{Theme: ThemeEndurance, Title: "Circuit Runner", Description: "Link 4 easy problems without stepping off.", XPReward: 45, MaxProgress: 4},
		{Theme: ThemeEndurance, Title: "Twenty Moves", Description: "Complete 20 problems in one session.", XPReward: 50, MaxProgress: 20},
		{Theme: ThemeEndurance, Title: "Up-Down-Up", Description: "Climb, downclimb and climb one problem again.", XPReward: 40, MaxProgress: 1},

		{Theme: ThemeProgression, Title: "Project Push", Description: "Spend 5 attempts on a problem one grade above your max.", XPReward: 50, MaxProgress: 5},
		{Theme: ThemeProgression, Title: "Flash Attempt", Description: "Try to flash 3 problems at your flash grade.", XPReward: 45, MaxProgress: 3},
		{Theme: ThemeProgression, Title: "Grade Pyramid", Description: "Send a pyramid of 4, 2 and 1 problems at rising grades.", XPReward: 55, MaxProgress: 7},

		{Theme: ThemeExploration, Title: "New Wall", Description: "Climb 3 problems on a wall angle you rarely use.", XPReward: 35, MaxProgress: 3},
		{Theme: ThemeExploration, Title: "Hold Collector", Description: "Climb problems on 4 different hold types.", XPReward: 40, MaxProgress: 4},
		{Theme: ThemeExploration, Title: "Corner Scout", Description: "Try every problem in one corner of the gym.", XPReward: 35, MaxProgress: 1},

		{Theme: ThemeMindfulness, Title: "Breath Control", Description: "Take three slow breaths before each attempt.", XPReward: 25, MaxProgress: 1},
		{Theme: ThemeMindfulness, Title: "Visualize First", Description: "Read and visualize 3 problems before touching them.", XPReward: 30, MaxProgress: 3},
		{Theme: ThemeMindfulness, Title: "Rest Properly", Description: "Rest at least 3 minutes between hard attempts.", XPReward: 25, MaxProgress: 1},

		{Theme: ThemeStrength, Title: "Board Laps", Description: "Climb 5 problems on the board.", XPReward: 45, MaxProgress: 5},
		{Theme: ThemeStrength, Title: "Lock-Off Drill", Description: "Hold 3 lock-offs for five seconds each.", XPReward: 40, MaxProgress: 3},
		{Theme: ThemeStrength, Title: "Campus Touch", Description: "Campus 2 easy problems.", XPReward: 45, MaxProgress: 2},
	}
}

func buildWeeklyTemplates() []QuestTemplate {
	const day = 24 * time.Hour
	return []QuestTemplate{
		{Title: "Week of Volume", Description: "Complete 40 problems this week.", XPReward: 200, MaxProgress: 40, ExpiresIn: 7 * day},
		{Title: "Three Sessions", Description: "Finish three climbing sessions.", XPReward: 180, MaxProgress: 3, ExpiresIn: 7 * day},
		{Title: "Grip Tour", Description: "Send problems on crimps, slopers, pinches and jugs.", XPReward: 220, MaxProgress: 4, ExpiresIn: 10 * day},
		{Title: "Project Siege", Description: "Send a problem at your max grade or above.", XPReward: 300, MaxProgress: 1, ExpiresIn: 14 * day},
	}
}

package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/glebk/herb-bot/internal/domain"
)

// Window selects the time range statistics are computed over
type Window string

const (
	WindowDay   Window = "Day"
	WindowWeek  Window = "Week"
	WindowMonth Window = "Month"
	WindowAll   Window = "All"
)

// Windows lists the windows in tab order
var Windows = []Window{WindowDay, WindowWeek, WindowMonth, WindowAll}

// ParseWindow parses a window name case-insensitively
func ParseWindow(s string) (Window, error) {
	for _, w := range Windows {
		if strings.EqualFold(strings.TrimSpace(s), string(w)) {
			return w, nil
		}
	}
	return "", fmt.Errorf("unknown window %q", s)
}

var dayBlocks = []string{"Late", "Early", "Morn", "Aft", "Eve", "Night"}

// Bucket is one bar of the activity chart
type Bucket struct {
	Name  string
	Count int
}

// Group is one entry of a frequency ranking
type Group struct {
	Label string
	Count int
}

// Summary holds the metrics derived for one window
type Summary struct {
	Window        Window
	Title         string
	Buckets       []Bucket
	TotalSessions int
	TotalGrams    float64
	TotalCost     float64
	AvgPerDay     float64
	BusiestDay    int
	Methods       []Group
	Strains       []Group
	UniqueStrains int
}

// MaxBucket returns the largest bucket count, at least 1, for scaling charts
func (s Summary) MaxBucket() int {
	m := 1
	for _, b := range s.Buckets {
		if b.Count > m {
			m = b.Count
		}
	}
	return m
}

// Aggregate derives the statistics for a window. Calendar boundaries are
// taken in now's location.
func Aggregate(sessions []domain.Session, window Window, rate float64, now time.Time) Summary {
	loc := now.Location()
	summary := Summary{Window: window}

	var filtered []domain.Session
	switch window {
	case WindowDay:
		summary.Title = "Today's Activity"
		filtered = since(sessions, startOfDay(now))
		counts := make([]int, len(dayBlocks))
		for _, s := range filtered {
			idx := s.Timestamp.In(loc).Hour() / 4
			if idx >= 0 && idx < len(counts) {
				counts[idx]++
			}
		}
		for i, name := range dayBlocks {
			summary.Buckets = append(summary.Buckets, Bucket{Name: name, Count: counts[i]})
		}

	case WindowWeek:
		summary.Title = "Last 7 Days"
		start := startOfDay(now.AddDate(0, 0, -6))
		filtered = since(sessions, start)
		for i := 0; i < 7; i++ {
			day := start.AddDate(0, 0, i)
			count := 0
			for _, s := range filtered {
				if sameDay(s.Timestamp.In(loc), day) {
					count++
				}
			}
			summary.Buckets = append(summary.Buckets, Bucket{Name: day.Format("Mon"), Count: count})
		}

	case WindowMonth:
		summary.Title = "This Month"
		filtered = since(sessions, time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc))
		weeks := make([]int, 5)
		for _, s := range filtered {
			idx := (s.Timestamp.In(loc).Day() - 1) / 7
			if idx < len(weeks) {
				weeks[idx]++
			}
		}
		for i, count := range weeks {
			summary.Buckets = append(summary.Buckets, Bucket{Name: fmt.Sprintf("W%d", i+1), Count: count})
		}

	default:
		summary.Window = WindowAll
		summary.Title = "Monthly History"
		filtered = sessions
		for i := 5; i >= 0; i-- {
			month := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, loc)
			count := 0
			for _, s := range sessions {
				ts := s.Timestamp.In(loc)
				if ts.Year() == month.Year() && ts.Month() == month.Month() {
					count++
				}
			}
			summary.Buckets = append(summary.Buckets, Bucket{Name: month.Format("Jan"), Count: count})
		}
	}

	summary.TotalSessions = len(filtered)
	for _, s := range filtered {
		summary.TotalGrams += s.Grams()
		summary.TotalCost += s.CostAt(rate)
	}

	if summary.TotalSessions > 0 {
		summary.AvgPerDay = float64(summary.TotalSessions) / float64(dayDivisor(summary.Window, now))
	}
	summary.BusiestDay = busiestDay(filtered, summary.Window, loc)

	summary.Methods = rankMethods(filtered)
	summary.Strains = rankStrains(filtered)
	for _, g := range summary.Strains {
		if g.Label != domain.StrainQuickLog && g.Label != domain.StrainUnknown {
			summary.UniqueStrains++
		}
	}

	return summary
}

func dayDivisor(window Window, now time.Time) int {
	switch window {
	case WindowWeek:
		return 7
	case WindowMonth:
		return now.Day()
	case WindowAll:
		return 30 * 6
	default:
		return 1
	}
}

func busiestDay(sessions []domain.Session, window Window, loc *time.Location) int {
	if window == WindowDay {
		return len(sessions)
	}
	perDay := make(map[string]int)
	busiest := 0
	for _, s := range sessions {
		key := s.Timestamp.In(loc).Format("2006-01-02")
		perDay[key]++
		busiest = max(busiest, perDay[key])
	}
	return busiest
}

func rankMethods(sessions []domain.Session) []Group {
	r := newRanking()
	for _, s := range sessions {
		m := string(s.Method.Normalize())
		r.add(m, m)
	}
	return r.sorted()
}

// StrainLabel returns the display label for a strain. Grouping is
// case-insensitive; blank strains are reported as Unknown.
func StrainLabel(strain string) string {
	st := strings.TrimSpace(strain)
	if st == "" {
		return domain.StrainUnknown
	}
	return cases.Title(language.English).String(strings.ToLower(st))
}

func rankStrains(sessions []domain.Session) []Group {
	r := newRanking()
	for _, s := range sessions {
		label := StrainLabel(s.Strain)
		r.add(strings.ToLower(label), label)
	}
	return r.sorted()
}

// ranking counts keys while remembering first-seen order, so the stable
// sort breaks ties by first encounter.
type ranking struct {
	index  map[string]int
	groups []Group
}

func newRanking() *ranking {
	return &ranking{index: make(map[string]int)}
}

func (r *ranking) add(key, label string) {
	if i, ok := r.index[key]; ok {
		r.groups[i].Count++
		return
	}
	r.index[key] = len(r.groups)
	r.groups = append(r.groups, Group{Label: label, Count: 1})
}

func (r *ranking) sorted() []Group {
	sort.SliceStable(r.groups, func(i, j int) bool {
		return r.groups[i].Count > r.groups[j].Count
	})
	return r.groups
}

func since(sessions []domain.Session, start time.Time) []domain.Session {
	var filtered []domain.Session
	for _, s := range sessions {
		if !s.Timestamp.Before(start) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

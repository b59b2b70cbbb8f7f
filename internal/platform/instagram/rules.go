package instagram

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Rules are the tunable parts of the profile-page heuristic. The defaults
// are best-effort values; they break whenever the page markup changes.
type Rules struct {
	// NotFound substrings, matched case-insensitively, mark a missing profile.
	NotFound []string `yaml:"not_found"`
	// LoginMarker in the final URL means the session was bounced to login.
	LoginMarker string `yaml:"login_marker"`
	// TitleKeywords next to the handle in <title> indicate a real profile.
	TitleKeywords []string `yaml:"title_keywords"`

	TakenMinSignals     int `yaml:"taken_min_signals"`
	EngagementMin       int `yaml:"engagement_min"`
	TitleMinSignals     int `yaml:"title_min_signals"`
	AvailableMaxSignals int `yaml:"available_max_signals"`
	PlaceholderSignals  int `yaml:"placeholder_signals"`
}

func DefaultRules() Rules {
	return Rules{
		NotFound: []string{
			`"HttpError":{"statusCode":404`,
			`page_not_found`,
			`"PageNotFound"`,
			`Sorry, this page isn't available`,
			`"status_code":404`,
		},
		LoginMarker:         "login",
		TitleKeywords:       []string{"posts", "followers"},
		TakenMinSignals:     4,
		EngagementMin:       2,
		TitleMinSignals:     2,
		AvailableMaxSignals: 1,
		PlaceholderSignals:  2,
	}
}

// LoadRules reads a YAML rules file. Keys absent from the file keep their
// default values.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	raw, err := os.ReadFile(path)
	if err != nil {
		return rules, errors.Wrap(err, "read rules")
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return rules, errors.Wrapf(err, "parse rules %s", path)
	}
	if rules.TakenMinSignals < 1 || rules.EngagementMin < 1 {
		return rules, errors.Errorf("rules %s: signal thresholds must be positive", path)
	}
	return rules, nil
}

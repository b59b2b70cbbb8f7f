package instagram

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dlclark/regexp2"

	"github.com/tdh8316/handlescout/internal/check"
)

const rateLimitFallback = 5 * time.Second

// Page is what came back for one profile request.
type Page struct {
	Status int
	// RequestURL is the profile URL asked for; FinalURL is where redirects
	// ended up.
	RequestURL string
	FinalURL   string
	Body       string
	RetryAfter time.Duration
}

// Signals are the independent markers of a real profile found in a page.
type Signals struct {
	UserID     bool
	Username   bool
	Followers  bool
	Following  bool
	Posts      bool
	ProfilePic bool
	Biography  bool
}

func (s Signals) Count() int {
	n := 0
	for _, b := range []bool{s.UserID, s.Username, s.Followers, s.Following, s.Posts, s.ProfilePic, s.Biography} {
		if b {
			n++
		}
	}
	return n
}

// Engagement counts the follower, following and post markers.
func (s Signals) Engagement() int {
	n := 0
	for _, b := range []bool{s.Followers, s.Following, s.Posts} {
		if b {
			n++
		}
	}
	return n
}

// Assessment is the classification of one page plus what led to it.
type Assessment struct {
	Outcome check.Outcome
	Signals Signals
	UserID  string
	Linked  bool
	Title   string
	// TitleMatch is true when the title names the candidate as a profile.
	TitleMatch bool
	// Notes are human-readable steps for debug output.
	Notes []string
}

var (
	userIDPattern     = regexp2.MustCompile(`"user"[:\s]*\{[^}]*"id"[:\s]*"(\d{5,})"`, regexp2.None)
	pageIDPattern     = regexp2.MustCompile(`"ProfilePage"[^}]*"user"[:\s]*\{[^}]*"id"[:\s]*"(\d{5,})"`, regexp2.None)
	followersPattern  = regexp2.MustCompile(`"edge_followed_by"[:\s]*\{[^}]*"count"[:\s]*\d+`, regexp2.None)
	followingPattern  = regexp2.MustCompile(`"edge_follow"[:\s]*\{[^}]*"count"[:\s]*\d+`, regexp2.None)
	postsPattern      = regexp2.MustCompile(`"edge_owner_to_timeline_media"[:\s]*\{[^}]*"count"[:\s]*\d+`, regexp2.None)
	profilePicPattern = regexp2.MustCompile(`"profile_pic_url"[:\s]*"https://[^"]+scontent[^"]*"`, regexp2.None)
	biographyPattern  = regexp2.MustCompile(`"biography"[:\s]*"([^"]+)"`, regexp2.None)
)

const matchTimeout = 2 * time.Second

func init() {
	for _, re := range []*regexp2.Regexp{userIDPattern, pageIDPattern, followersPattern, followingPattern, postsPattern, profilePicPattern, biographyPattern} {
		re.MatchTimeout = matchTimeout
	}
}

// loginWall reports a redirect away from the profile to a page whose path
// carries marker. The candidate's own path segment never counts.
func loginWall(page Page, candidate, marker string) bool {
	if marker == "" || page.FinalURL == "" || page.FinalURL == page.RequestURL {
		return false
	}
	final, err := url.Parse(page.FinalURL)
	if err != nil {
		return false
	}
	if req, err := url.Parse(page.RequestURL); err == nil && page.RequestURL != "" && strings.EqualFold(req.Path, final.Path) {
		return false
	}
	marker = strings.ToLower(marker)
	for _, seg := range strings.Split(final.Path, "/") {
		if seg == "" || strings.EqualFold(seg, candidate) {
			continue
		}
		if strings.Contains(strings.ToLower(seg), marker) {
			return true
		}
	}
	return false
}

// Classify turns a profile page into a verdict. It has no side effects and
// gives the same answer for the same input.
func Classify(page Page, candidate string, rules Rules) Assessment {
	var a Assessment
	note := func(format string, args ...any) {
		a.Notes = append(a.Notes, fmt.Sprintf(format, args...))
	}

	switch page.Status {
	case http.StatusNotFound:
		note("404 status")
		a.Outcome = check.Outcome{Verdict: check.Available, Detail: "404 status"}
		return a
	case http.StatusTooManyRequests:
		retry := page.RetryAfter
		if retry <= 0 {
			retry = rateLimitFallback
		}
		a.Outcome = check.Outcome{Verdict: check.RateLimited, RetryAfter: retry}
		return a
	case http.StatusBadRequest, http.StatusForbidden:
		a.Outcome = check.Outcome{Verdict: check.TransientError,
			Detail: fmt.Sprintf("blocked (status %d), check session/IP", page.Status)}
		return a
	}

	if loginWall(page, candidate, rules.LoginMarker) {
		note("redirected to %s", page.FinalURL)
		a.Outcome = check.Outcome{Verdict: check.TransientError, Detail: "session expired, re-enter sessionid"}
		return a
	}

	lower := strings.ToLower(page.Body)
	for _, s := range rules.NotFound {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			note("not-found marker %q", s)
			a.Outcome = check.Outcome{Verdict: check.Available, Detail: "not found signal"}
			return a
		}
	}

	a.UserID = firstGroup(userIDPattern, page.Body)
	if a.UserID == "" {
		a.UserID = firstGroup(pageIDPattern, page.Body)
	}
	esc := regexp2.Escape(candidate)
	if a.UserID != "" {
		// An id alone is often template data; it only counts when it sits
		// next to the candidate's username.
		a.Linked = matches(`"username"[:\s]*"`+esc+`"[^}]*"id"[:\s]*"`+a.UserID+`"`, page.Body)
	}
	a.Signals = Signals{
		UserID:     a.Linked,
		Username:   matches(`"username"[:\s]*"`+esc+`"`, page.Body),
		Followers:  matchString(followersPattern, page.Body),
		Following:  matchString(followingPattern, page.Body),
		Posts:      matchString(postsPattern, page.Body),
		ProfilePic: matchString(profilePicPattern, page.Body),
		Biography:  strings.TrimSpace(firstGroup(biographyPattern, page.Body)) != "",
	}

	a.Title = pageTitle(page.Body)
	a.TitleMatch = titleNames(a.Title, candidate, rules.TitleKeywords)

	count := a.Signals.Count()
	note("user id: %q, linked: %t", a.UserID, a.Linked)
	note("signals: %d/7 (engagement %d)", count, a.Signals.Engagement())
	if a.Title != "" {
		note("title: %q (match %t)", a.Title, a.TitleMatch)
	}

	switch {
	case a.Signals.UserID && a.Signals.Username:
		a.Outcome = check.Outcome{Verdict: check.Taken, Detail: "username + user_id confirmed"}
	case count >= rules.TakenMinSignals:
		a.Outcome = check.Outcome{Verdict: check.Taken, Detail: fmt.Sprintf("%d strong signals", count)}
	case a.Signals.Engagement() >= rules.EngagementMin && a.Signals.ProfilePic:
		a.Outcome = check.Outcome{Verdict: check.Taken, Detail: "engagement data present"}
	case a.TitleMatch && count >= rules.TitleMinSignals:
		a.Outcome = check.Outcome{Verdict: check.Taken, Detail: fmt.Sprintf("profile title + %d signals", count)}
	case count <= rules.AvailableMaxSignals:
		a.Outcome = check.Outcome{Verdict: check.Available, Detail: "no real profile data"}
	case count == rules.PlaceholderSignals && !a.Signals.Username:
		a.Outcome = check.Outcome{Verdict: check.Available, Detail: "only placeholder data"}
	default:
		a.Outcome = check.Outcome{Verdict: check.Unclear, Detail: fmt.Sprintf("%d signals, manual check recommended", count)}
	}
	return a
}

func pageTitle(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func titleNames(title, candidate string, keywords []string) bool {
	t := strings.ToLower(title)
	c := strings.ToLower(candidate)
	if t == "" || !strings.Contains(t, c) {
		return false
	}
	if strings.Contains(t, "@"+c) {
		return true
	}
	for _, k := range keywords {
		if k != "" && strings.Contains(t, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func firstGroup(re *regexp2.Regexp, s string) string {
	m, err := re.FindStringMatch(s)
	if err != nil || m == nil {
		return ""
	}
	return m.GroupByNumber(1).String()
}

func matchString(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}

// matches compiles a candidate-specific pattern; usernames compare
// case-insensitively.
func matches(pattern, s string) bool {
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return false
	}
	re.MatchTimeout = matchTimeout
	return matchString(re, s)
}

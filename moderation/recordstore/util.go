package recordstore

import (
	"regexp"

	"github.com/wardenbot/warden/moderation"
)

// search is f.Search compiled, or nil
func matchesFilter(inf *moderation.Infraction, f moderation.Filter, search *regexp.Regexp) bool {
	if f.Active != nil && inf.Active != *f.Active {
		return false
	}
	if f.Kind != "" && inf.Kind != f.Kind {
		return false
	}
	if f.Subject != 0 && inf.Subject != f.Subject {
		return false
	}
	if f.Actor != 0 && inf.Actor != f.Actor {
		return false
	}
	if search != nil && !search.MatchString(inf.Reason) {
		return false
	}
	return true
}

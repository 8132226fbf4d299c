package changeset

import (
	"fmt"
	"net/url"
	"time"

	"github.com/sidkik/orangeshare/pkg/errors"
)

// User identifies the author of a change.
type User struct {
	Name  string
	Email string
}

// UnknownUser is used when the backend can't tell who made a change.
var UnknownUser = User{Name: "Unknown", Email: "Unknown"}

func (u User) String() string {
	return fmt.Sprintf("%s <%s>", u.Name, u.Email)
}

// Folder is a reference to a synced folder.
type Folder struct {
	Name          string
	RemoteAddress *url.URL
}

// ChangeSet describes a single synchronized revision. It's created by the
// backend after a sync, and shouldn't be modified once it's handed to the
// engine.
type ChangeSet struct {
	User     User
	Folder   Folder
	Revision string

	Timestamp time.Time

	// FirstTimestamp is the time of the oldest change when several revisions
	// were squashed into this one.
	FirstTimestamp time.Time

	// IsMagical is set for synthetic revisions, such as the ones created by
	// the backend when the folder is first set up.
	IsMagical bool
	RemoteURL *url.URL

	Added   []string
	Deleted []string
	Edited  []string

	// MovedFrom and MovedTo are parallel: MovedFrom[i] was moved to MovedTo[i].
	MovedFrom []string
	MovedTo   []string
}

// AddMove records that `from` was moved to `to`.
func (cs *ChangeSet) AddMove(from, to string) {
	cs.MovedFrom = append(cs.MovedFrom, from)
	cs.MovedTo = append(cs.MovedTo, to)
}

// Validate checks that the move lists line up.
func (cs ChangeSet) Validate() error {
	if len(cs.MovedFrom) != len(cs.MovedTo) {
		return errors.New(fmt.Sprintf("%d moved-from paths but %d moved-to paths",
			len(cs.MovedFrom), len(cs.MovedTo)))
	}
	return nil
}

// Touches returns whether `path` was added, deleted, edited, or moved by the
// change set.
func (cs ChangeSet) Touches(path string) bool {
	for _, paths := range [][]string{cs.Added, cs.Deleted, cs.Edited, cs.MovedFrom, cs.MovedTo} {
		if contains(paths, path) {
			return true
		}
	}
	return false
}

// Unique returns a copy of the change set with duplicate paths removed from
// each list. Moves are deduplicated as pairs.
func (cs ChangeSet) Unique() ChangeSet {
	out := cs
	out.Added = unique(cs.Added)
	out.Deleted = unique(cs.Deleted)
	out.Edited = unique(cs.Edited)
	out.MovedFrom, out.MovedTo = nil, nil

	seen := map[[2]string]struct{}{}
	for i := range cs.MovedFrom {
		move := [2]string{cs.MovedFrom[i], cs.MovedTo[i]}
		if _, ok := seen[move]; ok {
			continue
		}
		seen[move] = struct{}{}
		out.AddMove(move[0], move[1])
	}
	return out
}

// RelativeTimestamp describes how long ago the change happened, e.g.
// "3 hours ago".
func (cs ChangeSet) RelativeTimestamp(now time.Time) string {
	span := now.Sub(cs.Timestamp)
	days := int(span.Hours() / 24)

	switch {
	case span <= time.Minute:
		return "just now"
	case span <= time.Hour:
		return plural(int(span.Minutes()), "a minute ago", "%d minutes ago")
	case span <= 24*time.Hour:
		return plural(int(span.Hours()), "an hour ago", "%d hours ago")
	case span <= 30*24*time.Hour:
		return plural(days, "a day ago", "%d days ago")
	case span <= 365*24*time.Hour:
		return plural(days/30, "a month ago", "%d months ago")
	default:
		return plural(days/365, "a year ago", "%d years ago")
	}
}

func plural(n int, one, many string) string {
	if n > 1 {
		return fmt.Sprintf(many, n)
	}
	return one
}

func unique(paths []string) []string {
	if paths == nil {
		return nil
	}

	seen := map[string]struct{}{}
	out := []string{}
	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out
}

func contains(paths []string, path string) bool {
	for _, p := range paths {
		if p == path {
			return true
		}
	}
	return false
}

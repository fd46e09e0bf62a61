package comment

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedComment indicates the canonical comment carries an unpaired
// start or end marker for an environment. Reconciliation refuses to touch
// such a comment: appending next to a dangling marker would scramble the
// block layout for every later update.
var ErrMalformedComment = errors.New("comment has unpaired environment markers")

// Comment is one existing comment in the target thread. ID is the
// provider-assigned identifier; zero means the comment does not exist yet.
type Comment struct {
	ID   int64
	Body string
}

// Reconcile merges a freshly rendered per-environment section into the
// aggregate status comment of a thread.
//
// The first comment whose body starts with overallMarker is canonical; if
// none exists the body is seeded with overallMarker alone and the returned
// targetID is zero, signalling the caller to create a new comment. When
// the canonical body already contains a start/end marker pair for the
// environment, exactly that span is replaced; otherwise the new block is
// appended. Content outside the touched span is preserved byte for byte.
//
// Known limitation: if several comments start with overallMarker only the
// first is updated, the rest are left alone.
func Reconcile(existing []Comment, overallMarker, environment, section string) (targetID int64, fullBody string, err error) {
	body := overallMarker
	for _, c := range existing {
		if strings.HasPrefix(c.Body, overallMarker) {
			targetID = c.ID
			body = c.Body
			break
		}
	}

	start, end := sectionMarkers(overallMarker, environment)
	block := start + "\n" + section + "\n" + end

	startIdx := markerIndex(body, start)
	endIdx := markerIndex(body, end)

	switch {
	case startIdx >= 0:
		// Replace the existing span. The end marker must close the block
		// that startIdx opens.
		if endIdx < startIdx {
			return 0, "", fmt.Errorf("environment %q: %w", environment, ErrMalformedComment)
		}
		body = body[:startIdx] + block + body[endIdx+len(end):]
	case endIdx >= 0:
		// End marker without a start marker.
		return 0, "", fmt.Errorf("environment %q: %w", environment, ErrMalformedComment)
	default:
		body = body + "\n" + block
	}

	return targetID, body, nil
}

// markerIndex locates a marker occupying a whole line. A plain substring
// search would match inside the markers of an environment whose name
// extends the requested one ("dev" inside "dev2"), splicing across the
// wrong block.
func markerIndex(body, marker string) int {
	for from := 0; ; {
		i := strings.Index(body[from:], marker)
		if i < 0 {
			return -1
		}
		i += from

		next := i + len(marker)
		lineStart := i == 0 || body[i-1] == '\n'
		lineEnd := next == len(body) || body[next] == '\n'
		if lineStart && lineEnd {
			return i
		}
		from = i + 1
	}
}

// sectionMarkers derives the per-environment start/end markers from the
// overall marker. For an HTML comment marker like "<!-- tfbot -->" the
// qualifier is spliced inside the comment ("<!-- tfbot:start:dev -->") so
// the rendered comment stays invisible; any other marker gets a plain
// suffix.
func sectionMarkers(overallMarker, environment string) (start, end string) {
	const closer = " -->"
	if base, ok := strings.CutSuffix(overallMarker, closer); ok {
		return base + ":start:" + environment + closer, base + ":end:" + environment + closer
	}
	return overallMarker + ":start:" + environment, overallMarker + ":end:" + environment
}

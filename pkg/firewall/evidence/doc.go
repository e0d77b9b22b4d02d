// Package evidence assesses evidence sufficiency for extracted claims and
// checks that a stated confidence is aligned with that evidence.
//
// Sources are only counted. Their content is never fetched or validated.
package evidence

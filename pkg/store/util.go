package store

import "strconv"

// placeholderIndex renders a 1-based SQL placeholder index ("$N") as a bare
// number for string-building dynamic WHERE/LIMIT clauses, where the number
// of preceding args varies with whether a cursor was supplied.
func placeholderIndex(n int) string {
	return strconv.Itoa(n)
}

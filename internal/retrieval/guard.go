package retrieval

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrStatementRejected is returned by CheckReadOnly for statements outside the
// read-only allow-list.
var ErrStatementRejected = errors.New("statement rejected")

var (
	readStatementRe = regexp.MustCompile(`(?i)^(SELECT|WITH|VALUES|EXPLAIN)\b`)
	lineCommentRe   = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// CheckReadOnly accepts exactly one SELECT, WITH, VALUES or EXPLAIN statement.
// Trailing semicolons are allowed; a semicolon anywhere else outside a quoted
// literal means a second statement and is rejected.
func CheckReadOnly(query string) error {
	stmt := blockCommentRe.ReplaceAllString(query, " ")
	stmt = lineCommentRe.ReplaceAllString(stmt, " ")
	stmt = strings.TrimSpace(stmt)
	stmt = strings.TrimSpace(strings.TrimRight(stmt, "; \t\r\n"))

	if stmt == "" {
		return fmt.Errorf("%w: empty statement", ErrStatementRejected)
	}
	if hasUnquotedSemicolon(stmt) {
		return fmt.Errorf("%w: only a single statement is allowed", ErrStatementRejected)
	}
	if !readStatementRe.MatchString(stmt) {
		first := strings.Fields(stmt)[0]
		return fmt.Errorf("%w: %s statements are not allowed, only SELECT, WITH, VALUES or EXPLAIN", ErrStatementRejected, strings.ToUpper(first))
	}
	return nil
}

// hasUnquotedSemicolon scans s skipping single- and double-quoted sections.
// Doubled quotes inside a literal are escapes and keep the scanner inside it.
func hasUnquotedSemicolon(s string) bool {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				if i+1 < len(s) && s[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			return true
		}
	}
	return false
}

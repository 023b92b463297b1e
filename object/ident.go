package object

// IsValidIdent reports whether s is a valid field identifier: a non-empty
// run of ASCII letters, digits, and underscores that does not start with
// a digit. set_field rejects names that fail this check rather than
// silently accepting them, since a malformed field name could never be
// read back by get_field's own identifier-shaped field access sites.
func IsValidIdent(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
		isDigit := c >= '0' && c <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

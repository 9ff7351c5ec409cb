package docgen

import "strings"

// SnakeCase converts a class or module name to lower snake case: an
// underscore is inserted before every ASCII capital (absorbing a directly
// preceding dot), the capital is lowercased and a single leading underscore
// is removed.
//
//	DatabaseInstance -> database_instance
//	HTTPServer       -> h_t_t_p_server
func SnakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' && i+1 < len(name) && isUpper(name[i+1]) {
			continue
		}
		if isUpper(c) {
			b.WriteByte('_')
			b.WriteByte(c + ('a' - 'A'))
			continue
		}
		b.WriteByte(c)
	}
	return strings.TrimPrefix(b.String(), "_")
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

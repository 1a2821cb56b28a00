package fuel

import "strings"

const (
	Gasoline  = "gasoline"
	Ethanol   = "ethanol"
	Diesel    = "diesel"
	DieselS10 = "diesel_s10"
	GNV       = "gnv"
)

var types = []string{Gasoline, Ethanol, Diesel, DieselS10, GNV}

func Types() []string {
	out := make([]string, len(types))
	copy(out, types)
	return out
}

// Normalize lowercases and trims s; it returns "" for unknown fuel types.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range types {
		if s == t {
			return s
		}
	}
	return ""
}

func Valid(s string) bool {
	return Normalize(s) != ""
}

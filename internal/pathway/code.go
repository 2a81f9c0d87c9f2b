package pathway

import "fmt"

// Code identifies a clinical concept in a terminology system, for example
// {"SNOMED-CT", "44054006", "Diabetes mellitus type 2"}.
type Code struct {
	System  string
	Value   string
	Display string
}

// IsZero reports whether the code is unset.
func (c Code) IsZero() bool {
	return c.System == "" && c.Value == "" && c.Display == ""
}

func (c Code) String() string {
	return fmt.Sprintf("%s|%s", c.System, c.Value)
}

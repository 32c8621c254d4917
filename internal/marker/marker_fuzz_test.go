package marker

import (
	"strings"
	"testing"
)

// FuzzValidateName ensures arbitrary names never panic and that any
// accepted name stays inside the marker directory.
func FuzzValidateName(f *testing.F) {
	f.Add("01-system-packages")
	f.Add("../escape")
	f.Add("a/b/c")
	f.Add(".")
	f.Add("")

	f.Fuzz(func(t *testing.T, name string) {
		err := ValidateName(name)
		if err != nil {
			return
		}
		if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") || strings.HasPrefix(name, ".") {
			t.Fatalf("ValidateName accepted unsafe name %q", name)
		}
	})
}

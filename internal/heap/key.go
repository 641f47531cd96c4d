package heap

import (
	"strconv"
	"strings"

	"github.com/taktoa/language-boogie/internal/value"
)

// EncodeKey turns an argument tuple into the string key a MapObject's
// Values/Overrides are keyed by. Args must not themselves be map
// references; internal/eval rejects that case before ever calling
// EncodeKey.
func EncodeKey(args []value.Value) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		switch v := a.(type) {
		case *value.Int:
			b.WriteByte('i')
			b.WriteString(strconv.FormatInt(v.N, 10))
		case *value.Bool:
			if v.B {
				b.WriteString("bt")
			} else {
				b.WriteString("bf")
			}
		case *value.Custom:
			b.WriteByte('c')
			b.WriteString(v.TypeName)
			b.WriteByte(':')
			b.WriteString(strconv.FormatInt(v.Tag, 10))
		default:
			b.WriteString("?" + a.String())
		}
	}
	return b.String()
}
